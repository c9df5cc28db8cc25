// Package eval scores an extracted statement table against a reference
// table: cell agreement with a numeric tolerance, header agreement and
// per-field scores for the usual bank statement columns.
package eval

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/source"
	"github.com/FACorreiaa/statement-extractor/internal/domain/transform"
)

// ErrEmptyTable is returned when a table to compare has no header.
var ErrEmptyTable = errors.New("table has no header")

// Table is a CSV table: a header line and data rows.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// ReadTable reads a CSV whose first record is the header.
func ReadTable(r io.Reader, name string) (*Table, error) {
	records, err := source.ReadRecords(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyTable)
	}
	return &Table{Name: name, Columns: records[0], Rows: records[1:]}, nil
}

// LoadTable reads a CSV table from path.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()
	return ReadTable(f, path)
}

// Options tunes a comparison.
type Options struct {
	Tolerance       decimal.Decimal
	HeaderThreshold float64
	MissingValues   []string
}

// DefaultOptions returns a tolerance of 0.0001 and a header similarity
// threshold of 0.8.
func DefaultOptions() Options {
	return Options{
		Tolerance:       decimal.RequireFromString("0.0001"),
		HeaderThreshold: 0.8,
		MissingValues:   transform.DefaultMissingValues,
	}
}

// CellDiff is one disagreeing cell.
type CellDiff struct {
	Row        int
	Column     string
	Expected   string
	Actual     string
	Difference decimal.Decimal
}

// Report is the result of a comparison.
type Report struct {
	Matches         int
	Differences     int
	CellsCompared   int
	RowsCompared    int
	MatchPercentage float64

	Headers HeaderComparison
	// ColumnScores holds the percentage of matching cells per expected column.
	ColumnScores map[string]float64
	Fields       FieldScores

	NumericDiffs   []CellDiff
	StringDiffs    []CellDiff
	MissingValues  []CellDiff
	TypeMismatches []CellDiff
	Tolerance      decimal.Decimal
}

type cellValue struct {
	raw     string
	missing bool
	number  decimal.Decimal
	numeric bool
}

// Compare walks the expected table cell by cell and looks up the same row and
// column name in actual. Cells absent from actual count as missing.
func Compare(expected, actual *Table, opts Options) *Report {
	missing := make(map[string]struct{}, len(opts.MissingValues))
	for _, tok := range opts.MissingValues {
		missing[tok] = struct{}{}
	}
	parse := func(s string, ok bool) cellValue {
		v := cellValue{raw: s}
		if _, isNA := missing[s]; !ok || isNA {
			v.missing = true
			return v
		}
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			v.number, v.numeric = d, true
		}
		return v
	}

	actualCol := make(map[string]int, len(actual.Columns))
	for i, c := range actual.Columns {
		if _, dup := actualCol[c]; !dup {
			actualCol[c] = i
		}
	}

	rep := &Report{
		Headers:      CompareHeaders(expected.Columns, actual.Columns, opts.HeaderThreshold),
		ColumnScores: make(map[string]float64, len(expected.Columns)),
		RowsCompared: len(expected.Rows),
		Tolerance:    opts.Tolerance,
	}
	colMatches := make([]int, len(expected.Columns))

	for r, row := range expected.Rows {
		for c, col := range expected.Columns {
			rep.CellsCompared++

			e := parse(cell(row, c))
			a := cellValue{missing: true}
			if ac, ok := actualCol[col]; ok && r < len(actual.Rows) {
				a = parse(cell(actual.Rows[r], ac))
			}

			diff := CellDiff{Row: r, Column: col, Expected: e.raw, Actual: a.raw}
			switch {
			case e.missing && a.missing:
				rep.Matches++
				colMatches[c]++
			case e.missing || a.missing:
				rep.Differences++
				rep.MissingValues = append(rep.MissingValues, diff)
			case e.numeric && a.numeric:
				delta := e.number.Sub(a.number).Abs()
				if delta.LessThanOrEqual(opts.Tolerance) {
					rep.Matches++
					colMatches[c]++
					continue
				}
				rep.Differences++
				diff.Difference = delta
				rep.NumericDiffs = append(rep.NumericDiffs, diff)
			case e.raw == a.raw:
				rep.Matches++
				colMatches[c]++
			case e.numeric != a.numeric:
				rep.Differences++
				rep.TypeMismatches = append(rep.TypeMismatches, diff)
			default:
				rep.Differences++
				rep.StringDiffs = append(rep.StringDiffs, diff)
			}
		}
	}

	for c, col := range expected.Columns {
		if _, seen := rep.ColumnScores[col]; seen {
			continue
		}
		rep.ColumnScores[col] = percent(colMatches[c], len(expected.Rows))
	}
	rep.MatchPercentage = percent(rep.Matches, rep.CellsCompared)
	rep.Fields = ScoreFields(rep.ColumnScores, expected.Columns)

	return rep
}

func cell(row []string, c int) (string, bool) {
	if c < len(row) {
		return row[c], true
	}
	return "", false
}

// percent returns part/total as a percentage rounded to two decimals, or 0
// when total is 0.
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round(float64(part)/float64(total)*100, 2)
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
