package transform

import (
	"log/slog"
	"strconv"
)

// Result is a finalized table ready to be written out.
type Result struct {
	Columns []string
	Rows    [][]string

	// Positional is set when the header did not match the column count and
	// the columns were named "0".."n-1" instead.
	Positional bool
	Stats      Stats
}

// Finalize validates the table after all operations ran. A table without rows
// is an error; a header that does not match the width is replaced with
// positional names.
func Finalize(t *Table, logger *slog.Logger) (*Result, error) {
	m := t.Matrix
	if m.Rows() == 0 {
		return nil, ErrNoRows
	}

	res := &Result{Rows: m.Data()}
	if len(t.Header) == m.Cols() {
		res.Columns = append([]string(nil), t.Header...)
		return res, nil
	}

	logger.Warn("header does not match column count, using positional column names",
		slog.Int("header_len", len(t.Header)),
		slog.Int("cols", m.Cols()),
		slog.Any("header", t.Header))

	res.Columns = PositionalColumns(m.Cols())
	res.Positional = true
	return res, nil
}

// PositionalColumns returns the names "0".."n-1".
func PositionalColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = strconv.Itoa(i)
	}
	return cols
}

// Records returns the table as CSV-ready records, header first.
func (r *Result) Records() [][]string {
	out := make([][]string, 0, len(r.Rows)+1)
	out = append(out, r.Columns)
	out = append(out, r.Rows...)
	return out
}
