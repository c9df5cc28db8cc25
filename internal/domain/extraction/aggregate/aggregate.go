// Package aggregate concatenates cleaned page tables into one document table.
package aggregate

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

var (
	// ErrNoPages is returned when there is nothing to concatenate.
	ErrNoPages = errors.New("no pages to aggregate")
	// ErrWidthMismatch marks a page whose width differs from the column set.
	ErrWidthMismatch = errors.New("page width does not match column set")
)

// Page is one cleaned page table.
type Page struct {
	Number  int
	Columns []string
	Rows    [][]string
}

// PageError reports a page excluded from the document table.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Table is the concatenated document table.
type Table struct {
	Columns  []string
	Rows     [][]string
	Pages    []int
	Excluded []PageError
}

// Records returns the table as CSV-ready records, header first.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Columns)
	return append(out, t.Rows...)
}

// Aggregate orders pages by number and concatenates their rows under a single
// column set: columnMap when given, otherwise the first page's columns. Pages
// of a different width are excluded and reported. A page whose first row
// repeats the column set loses that row.
func Aggregate(pages []Page, columnMap []string, logger *slog.Logger) (*Table, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	ordered := slices.Clone(pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Number < ordered[j].Number
	})

	columns := columnMap
	if len(columns) == 0 {
		columns = ordered[0].Columns
	}

	out := &Table{Columns: slices.Clone(columns)}
	for _, p := range ordered {
		if len(p.Columns) != len(columns) {
			logger.Warn("excluding page with mismatched width",
				slog.Int("page", p.Number),
				slog.Int("cols", len(p.Columns)),
				slog.Int("expected", len(columns)))
			out.Excluded = append(out.Excluded, PageError{
				Page: p.Number,
				Err:  fmt.Errorf("%w: %d != %d", ErrWidthMismatch, len(p.Columns), len(columns)),
			})
			continue
		}

		rows := p.Rows
		if len(rows) > 0 && slices.Equal(rows[0], columns) {
			logger.Debug("dropping repeated header row", slog.Int("page", p.Number))
			rows = rows[1:]
		}

		out.Rows = append(out.Rows, rows...)
		out.Pages = append(out.Pages, p.Number)
	}

	if len(out.Pages) == 0 {
		return nil, fmt.Errorf("%w: all %d pages excluded", ErrNoPages, len(pages))
	}

	logger.Info("aggregated pages",
		slog.Int("pages", len(out.Pages)),
		slog.Int("excluded", len(out.Excluded)),
		slog.Int("rows", len(out.Rows)))

	return out, nil
}
