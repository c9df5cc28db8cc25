package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/FACorreiaa/statement-extractor/internal/domain/eval"
	"github.com/FACorreiaa/statement-extractor/internal/domain/extraction/pipeline"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle("%s", title)
	}
	return t
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

// renderRecords prints at most limit rows; limit <= 0 prints all of them.
func renderRecords(w io.Writer, columns []string, rows [][]string, limit int) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := newTable(w, "")
	t.AppendHeader(toRow(columns))

	shown := rows
	if limit > 0 && len(rows) > limit {
		shown = rows[:limit]
	}
	for _, r := range shown {
		t.AppendRow(toRow(r))
	}
	t.Render()

	if len(shown) < len(rows) {
		_, _ = fmt.Fprintf(w, "(%d of %d rows)\n", len(shown), len(rows))
	} else {
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rows))
	}
}

func renderDocument(w io.Writer, res *pipeline.DocumentResult) {
	t := newTable(w, fmt.Sprintf("%s (%s)", res.Name, res.DocumentID))
	t.AppendHeader(table.Row{"Page", "Status", "Rows", "Operations", "Skipped ops", "Error"})

	for _, m := range res.Manifest() {
		t.AppendRow(table.Row{m.Page, m.Status, m.Rows, m.Operations, m.SkippedOps, m.Error})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d ok / %d failed / %d skipped", res.Succeeded, res.Failed, res.Skipped), res.RowCount})
	t.Render()

	if res.CSVPath != "" {
		_, _ = fmt.Fprintf(w, "stored %s\n", res.CSVPath)
	}
}

func renderReport(w io.Writer, rep *eval.Report, maxDiffs int) {
	summary := newTable(w, "Comparison")
	summary.AppendRows([]table.Row{
		{"Match", fmt.Sprintf("%.2f%%", rep.MatchPercentage)},
		{"Cells compared", rep.CellsCompared},
		{"Rows compared", rep.RowsCompared},
		{"Matches", rep.Matches},
		{"Differences", rep.Differences},
		{"Numeric / string / missing / type", fmt.Sprintf("%d / %d / %d / %d",
			len(rep.NumericDiffs), len(rep.StringDiffs), len(rep.MissingValues), len(rep.TypeMismatches))},
		{"Tolerance", rep.Tolerance.String()},
	})
	summary.Render()

	h := rep.Headers
	headers := newTable(w, "Headers")
	headers.AppendRows([]table.Row{
		{"Match", fmt.Sprintf("%.2f%%", h.MatchPercentage)},
		{"Identical", h.Identical},
		{"Same order", h.SameOrder},
		{"Only expected", h.OnlyExpected},
		{"Only actual", h.OnlyActual},
	})
	for _, m := range h.OrderDifferences {
		headers.AppendRow(table.Row{"Moved", fmt.Sprintf("%s: %d -> %d", m.Header, m.ExpectedPosition, m.ActualPosition)})
	}
	for _, s := range h.Similar {
		headers.AppendRow(table.Row{"Similar", fmt.Sprintf("%s ~ %s (%.3f)", s.Expected, s.Actual, s.Similarity)})
	}
	headers.Render()

	columns := newTable(w, "Columns")
	columns.AppendHeader(table.Row{"Column", "Score"})
	names := make([]string, 0, len(rep.ColumnScores))
	for name := range rep.ColumnScores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		columns.AppendRow(table.Row{name, fmt.Sprintf("%.2f%%", rep.ColumnScores[name])})
	}
	columns.Render()

	fields := newTable(w, "Fields")
	fields.AppendHeader(table.Row{"Field", "Column", "Score"})
	for _, f := range eval.Fields {
		fields.AppendRow(table.Row{f, rep.Fields.Columns[f], fmt.Sprintf("%.2f%%", rep.Fields.Score(f))})
	}
	fields.Render()

	if maxDiffs <= 0 || rep.Differences == 0 {
		return
	}

	diffs := newTable(w, "Differences")
	diffs.AppendHeader(table.Row{"Kind", "Row", "Column", "Expected", "Actual"})
	shown := 0
	for _, group := range []struct {
		kind  string
		cells []eval.CellDiff
	}{
		{"numeric", rep.NumericDiffs},
		{"string", rep.StringDiffs},
		{"missing", rep.MissingValues},
		{"type", rep.TypeMismatches},
	} {
		for _, d := range group.cells {
			if shown == maxDiffs {
				break
			}
			diffs.AppendRow(table.Row{group.kind, d.Row, d.Column, d.Expected, d.Actual})
			shown++
		}
	}
	diffs.Render()
}
