// Package source reads raw page tables produced by the OCR stage into a
// header and a string matrix.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported table format")

// ErrEmptyTable is returned when a source holds no records at all.
var ErrEmptyTable = errors.New("table has no records")

// Format identifies a raw table encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatXLSX   Format = "xlsx"
	FormatHTML   Format = "html"
	FormatJSON   Format = "json"
	FormatLayout Format = "layout"
)

// RawTable is a page table as the OCR stage wrote it.
//
// Labels is the consumed column-label line. Rows is the remaining data with
// Rows[0] conventionally repeating the header, and Header is a copy of it.
type RawTable struct {
	Labels []string
	Header []string
	Rows   [][]string
}

// Options tunes how sources are read.
type Options struct {
	// Delimiter overrides CSV delimiter detection when non-zero.
	Delimiter rune
	// Sheet selects an XLSX sheet by name. Empty picks the best match.
	Sheet string
}

// FormatFromPath maps a file name to its Format. Files ending in
// ".layout.json" are OCR layout documents.
func FormatFromPath(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".layout.json") {
		return FormatLayout, nil
	}

	switch filepath.Ext(name) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".html", ".htm", ".xml":
		return FormatHTML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Open reads the table stored at path, choosing the reader by extension.
func Open(path string, opts Options) (*RawTable, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	return Read(f, format, opts)
}

// Read decodes a table of the given format.
func Read(r io.Reader, format Format, opts Options) (*RawTable, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r, opts.Delimiter)
	case FormatXLSX:
		return ReadXLSX(r, opts.Sheet)
	case FormatHTML:
		return ReadHTML(r)
	case FormatJSON:
		return ReadJSON(r)
	case FormatLayout:
		return ReadLayout(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// fromRecords splits records into the label line and the data rows.
func fromRecords(records [][]string) (*RawTable, error) {
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}

	t := &RawTable{
		Labels: records[0],
		Rows:   records[1:],
	}
	if len(t.Rows) > 0 {
		t.Header = append([]string(nil), t.Rows[0]...)
	}
	return t, nil
}
