// Package transform applies declarative edit operations to an extracted statement table.
// A page's Matrix and Header are owned by one Dispatcher run and mutated in place by the
// operation handlers, then reconciled by the Finalizer.
package transform

import (
	"sort"
	"strings"
)

// Matrix is a rectangular grid of cell text. Every row has exactly Cols() cells.
// The width is tracked separately so a matrix with no rows still knows its columns.
type Matrix struct {
	rows [][]string
	cols int
}

// NewMatrix builds a matrix from raw rows. Ragged rows are padded with empty
// cells up to the widest row. The input slices are copied.
func NewMatrix(rows [][]string) *Matrix {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return NewMatrixWidth(rows, width)
}

// NewMatrixWidth builds a matrix with a fixed width. Longer rows are truncated.
func NewMatrixWidth(rows [][]string, width int) *Matrix {
	m := &Matrix{
		rows: make([][]string, len(rows)),
		cols: width,
	}
	for i, row := range rows {
		cells := make([]string, width)
		copy(cells, row)
		m.rows[i] = cells
	}
	return m
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return len(m.rows) }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Get returns the cell at (r, c). Callers validate bounds first.
func (m *Matrix) Get(r, c int) string { return m.rows[r][c] }

// Set overwrites the cell at (r, c). Callers validate bounds first.
func (m *Matrix) Set(r, c int, v string) { m.rows[r][c] = v }

// Row returns a copy of row r.
func (m *Matrix) Row(r int) []string {
	out := make([]string, m.cols)
	copy(out, m.rows[r])
	return out
}

// Data returns a deep copy of the grid.
func (m *Matrix) Data() [][]string {
	out := make([][]string, len(m.rows))
	for i := range m.rows {
		out[i] = m.Row(i)
	}
	return out
}

// Clone returns an independent copy of the matrix.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{rows: m.Data(), cols: m.cols}
}

// InRow reports whether r addresses an existing row.
func (m *Matrix) InRow(r int) bool { return r >= 0 && r < len(m.rows) }

// InCol reports whether c addresses an existing column.
func (m *Matrix) InCol(c int) bool { return c >= 0 && c < m.cols }

// InsertRowAt inserts a row at index, clamped to [0, Rows()]. The row is
// padded or truncated to the current width. It returns the index used.
func (m *Matrix) InsertRowAt(index int, row []string) int {
	index = clamp(index, 0, len(m.rows))
	cells := make([]string, m.cols)
	copy(cells, row)

	m.rows = append(m.rows, nil)
	copy(m.rows[index+1:], m.rows[index:])
	m.rows[index] = cells
	return index
}

// DeleteRows removes the given rows in one batch. Indices refer to the matrix
// before the call; duplicates and out-of-range indices are ignored. It returns
// the indices actually removed, ascending.
func (m *Matrix) DeleteRows(indices []int) []int {
	drop := validSet(indices, len(m.rows))
	if len(drop) == 0 {
		return nil
	}

	kept := m.rows[:0:0]
	for i, row := range m.rows {
		if _, ok := drop[i]; !ok {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return sortedKeys(drop)
}

// InsertColAt inserts a column filled with value at index, clamped to
// [0, Cols()]. It returns the index used.
func (m *Matrix) InsertColAt(index int, value string) int {
	index = clamp(index, 0, m.cols)
	for i, row := range m.rows {
		row = append(row, "")
		copy(row[index+1:], row[index:])
		row[index] = value
		m.rows[i] = row
	}
	m.cols++
	return index
}

// DeleteCols removes the given columns from every row. Indices refer to the
// matrix before the call and are applied in descending order; duplicates and
// out-of-range indices are ignored. It returns the removed indices, descending.
func (m *Matrix) DeleteCols(indices []int) []int {
	drop := validSet(indices, m.cols)
	if len(drop) == 0 {
		return nil
	}

	desc := sortedKeys(drop)
	sort.Sort(sort.Reverse(sort.IntSlice(desc)))

	for i, row := range m.rows {
		for _, c := range desc {
			row = append(row[:c], row[c+1:]...)
		}
		m.rows[i] = row
	}
	m.cols -= len(desc)
	return desc
}

// String renders the matrix one row per line for log output.
func (m *Matrix) String() string {
	var b strings.Builder
	for i, row := range m.rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		for j, cell := range row {
			if j > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(cell)
		}
		b.WriteByte(']')
	}
	return b.String()
}

func validSet(indices []int, limit int) map[int]struct{} {
	set := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if i >= 0 && i < limit {
			set[i] = struct{}{}
		}
	}
	return set
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
