package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var datePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}|\d{2}/\d{2}/\d{4}|\d{2}-\d{2}-\d{4})`)

// LayoutPage is one page of an OCR layout analysis document.
type LayoutPage struct {
	PageNumber int    `json:"page_number"`
	FilePath   string `json:"file_path,omitempty"`
	Analysis   struct {
		Tables []LayoutTable `json:"tables"`
	} `json:"analysis"`
}

// LayoutTable is a detected table: column names and rows keyed by them.
type LayoutTable struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// tables need a header line and at least one data row
const minLayoutRows = 2

// a header row has more than this many filled cells
const minHeaderCells = 3

var headerKeywords = []string{"date", "balance", "description"}

// ReadLayout reads an OCR layout document holding one page object or a list
// of them. Tables with fewer than two rows are skipped and the last row of
// every other table is dropped. The remaining rows are concatenated in page
// order and aligned by column name.
//
// The label line is the widest table's header row: the first row with more
// than three filled cells, kept when it mentions a date, balance or
// description. Only that table's columns are kept. Without a header row the
// labels are the column names of every table in order of appearance.
func ReadLayout(r io.Reader) (*RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout document: %w", err)
	}

	pages, err := decodeLayoutPages(data)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})

	var (
		columns    []string
		seen       = make(map[string]bool)
		headerCols []string
		header     []string
		rows       []map[string]string
	)
	for _, page := range pages {
		for _, table := range page.Analysis.Tables {
			cols, filled := table.Normalize()
			if len(filled) < minLayoutRows {
				continue
			}
			for _, c := range cols {
				if !seen[c] {
					seen[c] = true
					columns = append(columns, c)
				}
			}
			if h := headerRow(filled); h != nil && len(cols) > len(headerCols) {
				headerCols, header = cols, h
			}
			for _, row := range filled[:len(filled)-1] {
				keyed := make(map[string]string, len(cols))
				for i, c := range cols {
					if _, dup := keyed[c]; !dup {
						keyed[c] = row[i]
					}
				}
				rows = append(rows, keyed)
			}
		}
	}
	if len(rows) == 0 {
		return nil, ErrEmptyTable
	}

	labels := columns
	if headerCols != nil {
		columns = headerCols
		labels = make([]string, len(header))
		for i, h := range header {
			labels[i] = CleanHeader(h)
		}
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, labels)
	for _, keyed := range rows {
		record := make([]string, len(columns))
		for i, c := range columns {
			record[i] = keyed[c]
		}
		records = append(records, record)
	}
	return fromRecords(records)
}

// headerRow returns the first row with more than minHeaderCells filled cells
// when it mentions a header keyword.
func headerRow(rows [][]string) []string {
	for _, row := range rows {
		filled := 0
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				filled++
			}
		}
		if filled <= minHeaderCells {
			continue
		}
		for _, v := range row {
			lower := strings.ToLower(v)
			for _, kw := range headerKeywords {
				if strings.Contains(lower, kw) {
					return row
				}
			}
		}
		return nil
	}
	return nil
}

func decodeLayoutPages(data []byte) ([]LayoutPage, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pages []LayoutPage
		if err := json.Unmarshal(data, &pages); err != nil {
			return nil, fmt.Errorf("failed to decode layout document: %w", err)
		}
		return pages, nil
	}

	var page LayoutPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode layout document: %w", err)
	}
	return []LayoutPage{page}, nil
}

// Normalize returns cleaned column names and the table's rows ordered by
// column. The first column holding a date-looking value is forward-filled
// and rows with no content are dropped.
func (t LayoutTable) Normalize() ([]string, [][]string) {
	if len(t.Columns) == 0 || len(t.Rows) == 0 {
		return nil, nil
	}

	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = CleanHeader(c)
	}

	dateCol := -1
	previous := ""
	var rows [][]string
	for _, raw := range t.Rows {
		row := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			value := scalarString(raw[col])
			if dateCol < 0 && value != "" && datePrefix.MatchString(value) {
				dateCol = i
			}
			if i == dateCol {
				if value == "" {
					value = previous
				} else {
					previous = value
				}
			}
			row[i] = value
		}
		if !blankRow(row) {
			rows = append(rows, row)
		}
	}

	return cols, rows
}

// CleanHeader normalizes an OCR'd column name: NFKC, question marks
// dropped, line breaks folded into single spaces.
func CleanHeader(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "?", "")
	return strings.Join(strings.Fields(s), " ")
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
