package transform

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// Table is the Matrix and Header pair owned by one dispatch run.
type Table struct {
	Header []string
	Matrix *Matrix
}

// ============================================================================
// regex_replace
// ============================================================================

func applyRegexReplace(p RegexReplace, t *Table, log *slog.Logger) error {
	for i, rule := range p.Rules {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return fmt.Errorf("failed to compile pattern %d %q: %w", i, rule.Regex, err)
		}
		repl := ExpandTemplate(string(rule.Replacement))

		changed := 0
		m := t.Matrix
		for r := 0; r < m.Rows(); r++ {
			for c := 0; c < m.Cols(); c++ {
				cell := m.Get(r, c)
				if cell == "" {
					continue
				}
				if out := re.ReplaceAllString(cell, repl); out != cell {
					m.Set(r, c, out)
					changed++
				}
			}
		}
		log.Debug("regex rule applied",
			slog.String("pattern", rule.Regex),
			slog.Int("cells_changed", changed))
	}
	return nil
}

// ExpandTemplate rewrites a backslash-style replacement (\1, \g<1>, \g<name>)
// into the $-template syntax used by regexp. A literal $ stays literal.
func ExpandTemplate(repl string) string {
	var b strings.Builder
	b.Grow(len(repl) + 8)

	for i := 0; i < len(repl); i++ {
		ch := repl[i]
		switch {
		case ch == '$':
			b.WriteString("$$")
		case ch != '\\' || i+1 == len(repl):
			b.WriteByte(ch)
		default:
			next := repl[i+1]
			switch {
			case next >= '0' && next <= '9':
				j := i + 1
				for j < len(repl) && j < i+3 && repl[j] >= '0' && repl[j] <= '9' {
					j++
				}
				b.WriteString("${" + repl[i+1:j] + "}")
				i = j - 1
			case next == 'g' && i+2 < len(repl) && repl[i+2] == '<':
				end := strings.IndexByte(repl[i+3:], '>')
				if end < 0 {
					b.WriteString(repl[i:])
					return b.String()
				}
				b.WriteString("${" + repl[i+3:i+3+end] + "}")
				i = i + 3 + end
			case next == 'n':
				b.WriteByte('\n')
				i++
			case next == 't':
				b.WriteByte('\t')
				i++
			case next == '\\':
				b.WriteByte('\\')
				i++
			default:
				b.WriteByte(ch)
			}
		}
	}
	return b.String()
}

// ============================================================================
// delete_rows / delete_cols
// ============================================================================

func applyDeleteRows(p DeleteRows, t *Table, log *slog.Logger) error {
	removed := t.Matrix.DeleteRows(p.RowIndices)
	if len(removed) == 0 {
		log.Warn("delete_rows: no valid row indices, nothing removed",
			slog.Any("row_indices", []int(p.RowIndices)),
			slog.Int("rows", t.Matrix.Rows()))
		return nil
	}
	if skipped := len(p.RowIndices) - len(removed); skipped > 0 {
		log.Debug("delete_rows: ignored out-of-range or duplicate indices", slog.Int("ignored", skipped))
	}
	log.Debug("rows deleted", slog.Any("removed", removed), slog.Int("rows", t.Matrix.Rows()))
	return nil
}

func applyDeleteCols(p DeleteCols, t *Table, log *slog.Logger) error {
	removed := t.Matrix.DeleteCols(p.ColIndices)
	if len(removed) < len(p.ColIndices) {
		log.Debug("delete_cols: skipped out-of-range or duplicate indices",
			slog.Any("col_indices", []int(p.ColIndices)),
			slog.Any("removed", removed))
	}
	log.Debug("columns deleted", slog.Any("removed", removed), slog.Int("cols", t.Matrix.Cols()))
	return nil
}

// ============================================================================
// insert_column / map_column
// ============================================================================

func applyInsertColumn(p InsertColumn, t *Table, log *slog.Logger) error {
	value := string(p.DefaultValue)
	if strings.EqualFold(strings.TrimSpace(value), "nan") {
		value = ""
	}

	at := t.Matrix.InsertColAt(int(p.Position), value)

	hp := clamp(at, 0, len(t.Header))
	t.Header = append(t.Header, "")
	copy(t.Header[hp+1:], t.Header[hp:])
	t.Header[hp] = string(p.Name)

	log.Debug("column inserted",
		slog.String("name", string(p.Name)),
		slog.Int("requested", int(p.Position)),
		slog.Int("position", at))
	return nil
}

// applyMapColumn renames header entries. An index past the end appends a new
// entry, so the header may no longer match the matrix width afterwards.
func applyMapColumn(p MapColumn, t *Table, log *slog.Logger) error {
	name := string(p.HeaderName)
	for _, idx := range p.ColumnIndex {
		switch {
		case idx < 0:
			log.Warn("map_column: negative column index skipped",
				slog.Int("column_index", idx),
				slog.String("header_name", name))
		case idx < len(t.Header):
			t.Header[idx] = name
		default:
			t.Header = append(t.Header, name)
			log.Debug("map_column: index beyond header, appended",
				slog.Int("column_index", idx),
				slog.Int("header_len", len(t.Header)))
		}
	}
	return nil
}

// ============================================================================
// merge_rows / merge_cols
// ============================================================================

func applyMergeRows(p MergeRows, t *Table, log *slog.Logger) error {
	m := t.Matrix
	if p.TargetRowIndex == nil {
		return fmt.Errorf("merge_rows: target_row_index is required")
	}
	target := int(*p.TargetRowIndex)

	start, end := p.RowRange.Bounds(m.Rows())
	for _, src := range p.SourceRowIndices {
		if src < start || src > end {
			continue
		}
		if !m.InRow(target) {
			return rowRangeErr("target row", target, m)
		}
		if src == target {
			continue
		}
		if !m.InRow(src) {
			return rowRangeErr("source row", src, m)
		}

		for c := 0; c < m.Cols(); c++ {
			if src < target {
				m.Set(target, c, m.Get(src, c)+" "+m.Get(target, c))
			} else {
				m.Set(target, c, m.Get(target, c)+" "+m.Get(src, c))
			}
		}
		log.Debug("rows merged", slog.Int("source", src), slog.Int("target", target))
	}
	return nil
}

// applyMergeCols joins the target and every source column, in ascending column
// order, into the target for each row of the range.
func applyMergeCols(p MergeCols, t *Table, log *slog.Logger) error {
	m := t.Matrix
	if p.TargetColIndex == nil {
		return fmt.Errorf("merge_cols: target_col_index is required")
	}
	target := int(*p.TargetColIndex)
	if !m.InCol(target) {
		return colRangeErr("target column", target, m)
	}

	set := map[int]struct{}{target: {}}
	for _, c := range p.SourceColIndices {
		if !m.InCol(c) {
			return colRangeErr("source column", c, m)
		}
		set[c] = struct{}{}
	}
	if len(set) == 1 {
		log.Debug("merge_cols: no source columns besides the target")
		return nil
	}
	cols := sortedKeys(set)

	start, end := p.RowRange.Bounds(m.Rows())
	if err := checkRowSpan(start, end, m); err != nil {
		return err
	}

	parts := make([]string, len(cols))
	for r := start; r < end; r++ {
		for k, c := range cols {
			parts[k] = m.Get(r, c)
		}
		m.Set(r, target, strings.Join(parts, " "))
	}
	log.Debug("columns merged", slog.Int("target", target), slog.Any("columns", cols),
		slog.Int("start_row", start), slog.Int("end_row", end))
	return nil
}

// ============================================================================
// split_cols
// ============================================================================

// applySplitCols writes the capture groups of an anchored match into the
// destination columns. Destinations past the current width extend the matrix.
func applySplitCols(p SplitCols, t *Table, log *slog.Logger) error {
	m := t.Matrix
	if p.SourceColIndex == nil {
		return fmt.Errorf("split_cols: source_col_index is required")
	}
	src := int(*p.SourceColIndex)
	if !m.InCol(src) {
		return colRangeErr("source column", src, m)
	}
	if p.Method != "" && !strings.EqualFold(p.Method, "regex") {
		log.Warn("split_cols: unsupported method, splitting by regex", slog.String("method", p.Method))
	}

	re, err := regexp.Compile("^(?:" + p.SplitLogic + ")")
	if err != nil {
		return fmt.Errorf("failed to compile split_logic %q: %w", p.SplitLogic, err)
	}

	dests := []int(p.IndexCreated)
	for _, d := range dests {
		if d < 0 {
			return colRangeErr("destination column", d, m)
		}
		for d >= m.Cols() {
			m.InsertColAt(m.Cols(), "")
		}
	}

	start, end := p.RowRange.Bounds(m.Rows())
	if err := checkRowSpan(start, end, m); err != nil {
		return err
	}

	matched := 0
	for r := start; r < end; r++ {
		cell := m.Get(r, src)
		groups := re.FindStringSubmatch(cell)
		if groups != nil {
			matched++
			groups = groups[1:]
		}
		for i, d := range dests {
			v := ""
			if i < len(groups) {
				v = groups[i]
			}
			m.Set(r, d, v)
		}
	}

	log.Debug("column split",
		slog.Int("source", src),
		slog.Any("destinations", dests),
		slog.Int("rows", end-start),
		slog.Int("matched", matched))
	return nil
}

// checkRowSpan accepts an empty span whatever its bounds.
func checkRowSpan(start, end int, m *Matrix) error {
	if start >= end {
		return nil
	}
	if start > m.Rows() {
		return rowRangeErr("start row", start, m)
	}
	if end > m.Rows() {
		return rowRangeErr("end row", end, m)
	}
	return nil
}

// ============================================================================
// copy_item
// ============================================================================

func applyCopyItem(p CopyItem, t *Table, log *slog.Logger) error {
	m := t.Matrix
	fr, fc, tr, tc := int(p.FromRow), int(p.FromCol), int(p.ToRow), int(p.ToCol)

	switch {
	case !m.InRow(fr):
		return rowRangeErr("from row", fr, m)
	case !m.InCol(fc):
		return colRangeErr("from column", fc, m)
	case !m.InRow(tr):
		return rowRangeErr("to row", tr, m)
	case !m.InCol(tc):
		return colRangeErr("to column", tc, m)
	}

	m.Set(tr, tc, m.Get(fr, fc))
	log.Debug("cell copied",
		slog.String("from", strconv.Itoa(fr)+","+strconv.Itoa(fc)),
		slog.String("to", strconv.Itoa(tr)+","+strconv.Itoa(tc)))
	return nil
}
