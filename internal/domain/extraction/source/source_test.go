package source

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// ============================================================================
// CSV
// ============================================================================

func TestReadCSV(t *testing.T) {
	t.Run("label line consumed and header copied from first row", func(t *testing.T) {
		in := "0,1,2\nDate,Description,Amount\n01/02/2024,Coffee,3.50\n"

		tbl, err := ReadCSV(strings.NewReader(in), 0)
		require.NoError(t, err)

		assert.Equal(t, []string{"0", "1", "2"}, tbl.Labels)
		assert.Equal(t, []string{"Date", "Description", "Amount"}, tbl.Header)
		require.Len(t, tbl.Rows, 2)
		assert.Equal(t, []string{"01/02/2024", "Coffee", "3.50"}, tbl.Rows[1])
	})

	t.Run("header is a copy", func(t *testing.T) {
		tbl, err := ReadCSV(strings.NewReader("a,b\nx,y\n"), ',')
		require.NoError(t, err)

		tbl.Rows[0][0] = "changed"
		assert.Equal(t, "x", tbl.Header[0])
	})

	t.Run("semicolon detected and bom stripped", func(t *testing.T) {
		in := "\xef\xbb\xbfData;Descrição;Valor\n01-02-2024;Café, pastel;3,50\n02-02-2024;Renda;-500,00\n"

		tbl, err := ReadCSV(strings.NewReader(in), 0)
		require.NoError(t, err)

		assert.Equal(t, []string{"Data", "Descrição", "Valor"}, tbl.Labels)
		assert.Equal(t, []string{"01-02-2024", "Café, pastel", "3,50"}, tbl.Header)
	})

	t.Run("ragged records allowed", func(t *testing.T) {
		tbl, err := ReadCSV(strings.NewReader("a,b,c\n1,2\n3,4,5,6\n"), ',')
		require.NoError(t, err)

		assert.Len(t, tbl.Rows[0], 2)
		assert.Len(t, tbl.Rows[1], 4)
	})

	t.Run("only labels", func(t *testing.T) {
		tbl, err := ReadCSV(strings.NewReader("a,b\n"), ',')
		require.NoError(t, err)

		assert.Empty(t, tbl.Rows)
		assert.Nil(t, tbl.Header)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""), 0)
		assert.ErrorIs(t, err, ErrEmptyTable)
	})
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3\n", ','},
		{"semicolon beats stray comma", "a;b;c\n1;x, y;3\n4;5;6\n", ';'},
		{"tab", "a\tb\n1\t2\n", '\t'},
		{"pipe", "a|b|c\n1|2|3\n", '|'},
		{"no delimiter", "single\ncolumn\n", ','},
		{"empty", "", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectDelimiter([]byte(tt.in)))
		})
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	records := [][]string{
		{"Date", "Description"},
		{"01/02", `Say "hi", again`},
		{"", "multi\nline"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	got, err := ReadRecords(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

// ============================================================================
// XLSX
// ============================================================================

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("Extrato")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Extrato", "A1", &[]any{"0", "1"}))
	require.NoError(t, f.SetSheetRow("Extrato", "A2", &[]any{"Date", "Amount"}))
	require.NoError(t, f.SetSheetRow("Extrato", "A3", &[]any{"01/02/2024", "12.5"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"ignored"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	t.Run("preferred sheet", func(t *testing.T) {
		tbl, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "")
		require.NoError(t, err)

		assert.Equal(t, []string{"Date", "Amount"}, tbl.Header)
		assert.Equal(t, [][]string{{"Date", "Amount"}, {"01/02/2024", "12.5"}}, tbl.Rows)
	})

	t.Run("named sheet", func(t *testing.T) {
		tbl, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "Sheet1")
		require.NoError(t, err)

		assert.Equal(t, []string{"ignored"}, tbl.Labels)
		assert.Empty(t, tbl.Rows)
	})

	t.Run("not a workbook", func(t *testing.T) {
		_, err := ReadXLSX(strings.NewReader("plain text"), "")
		assert.Error(t, err)
	})
}

func TestFindSheet(t *testing.T) {
	assert.Equal(t, "", findSheet(nil))
	assert.Equal(t, "Movimentos", findSheet([]string{"Resumo", "Movimentos"}))
	assert.Equal(t, "Resumo", findSheet([]string{"Resumo", "Outro"}))
}

// ============================================================================
// HTML
// ============================================================================

func TestReadHTML(t *testing.T) {
	t.Run("first table with colspan", func(t *testing.T) {
		in := `<html><body>
<table>
  <tr><th>0</th><th>1</th><th>2</th></tr>
  <tr><td>Date</td><td colspan="2">Description
      and amount</td></tr>
  <tr><td>01/02</td><td>Coffee</td><td>3.50</td></tr>
</table>
<table><tr><td>other</td></tr></table>
</body></html>`

		tbl, err := ReadHTML(strings.NewReader(in))
		require.NoError(t, err)

		assert.Equal(t, []string{"0", "1", "2"}, tbl.Labels)
		assert.Equal(t, []string{"Date", "Description and amount", ""}, tbl.Header)
		assert.Equal(t, []string{"01/02", "Coffee", "3.50"}, tbl.Rows[1])
	})

	t.Run("no table", func(t *testing.T) {
		_, err := ReadHTML(strings.NewReader("<p>nothing</p>"))
		assert.ErrorIs(t, err, ErrEmptyTable)
	})
}

// ============================================================================
// JSON
// ============================================================================

func TestReadJSON(t *testing.T) {
	in := `{"header": ["0", "1", "2"], "rows": [["Date", "Amount", "Flag"], ["01/02", 12.5, null], [true, 3, "x"]]}`

	tbl, err := ReadJSON(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Amount", "Flag"}, tbl.Header)
	assert.Equal(t, []string{"01/02", "12.5", ""}, tbl.Rows[1])
	assert.Equal(t, []string{"true", "3", "x"}, tbl.Rows[2])

	_, err = ReadJSON(strings.NewReader(`{}`))
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = ReadJSON(strings.NewReader(`{"rows": 1}`))
	assert.Error(t, err)
}

// ============================================================================
// Layout
// ============================================================================

const layoutDoc = `[
  {"page_number": 2, "analysis": {"tables": [
    {"columns": ["Date", "Description line", "Amount"], "rows": [
      {"Date": "2024-01-05", "Description line": "carried", "Amount": "1.00"},
      {"Date": "", "Description line": "page total", "Amount": "4.50"}
    ]}
  ]}},
  {"page_number": 1, "analysis": {"tables": [
    {"columns": ["Date", "Descrip?tion\nline", "Amount"], "rows": [
      {"Date": "", "Descrip?tion\nline": " ", "Amount": null},
      {"Date": "", "Descrip?tion\nline": "opening", "Amount": ""},
      {"Date": "2024-01-02", "Descrip?tion\nline": "Coffee", "Amount": 3.5},
      {"Date": "", "Descrip?tion\nline": "continued", "Amount": ""},
      {"Date": "", "Descrip?tion\nline": "subtotal", "Amount": "3.5"}
    ]},
    {"columns": ["Other"], "rows": [{"Other": "x"}]}
  ]}}
]`

func TestReadLayout(t *testing.T) {
	tbl, err := ReadLayout(strings.NewReader(layoutDoc))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Description line", "Amount"}, tbl.Labels)
	assert.Equal(t, [][]string{
		{"", "opening", ""},
		{"2024-01-02", "Coffee", "3.5"},
		{"2024-01-02", "continued", ""},
		{"2024-01-05", "carried", "1.00"},
	}, tbl.Rows)
	assert.Equal(t, []string{"", "opening", ""}, tbl.Header)
}

func TestReadLayout_HeaderRow(t *testing.T) {
	in := `[
	  {"page_number": 1, "analysis": {"tables": [
	    {"columns": ["c0", "c1", "c2", "c3"], "rows": [
	      {"c0": "Statement"},
	      {"c0": "Date", "c1": "Descrip?tion", "c2": "Debit", "c3": "Balance"},
	      {"c0": "2024-01-02", "c1": "Coffee", "c2": "3.50", "c3": "96.50"},
	      {"c0": "", "c1": "Total", "c2": "", "c3": ""}
	    ]}
	  ]}},
	  {"page_number": 2, "analysis": {"tables": [
	    {"columns": ["c0", "c1", "c4"], "rows": [
	      {"c0": "2024-01-03", "c1": "Salary", "c4": "x"},
	      {"c0": "2024-01-04", "c1": "Rent", "c4": "y"},
	      {"c0": "", "c1": "footer", "c4": ""}
	    ]}
	  ]}}
	]`

	tbl, err := ReadLayout(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Description", "Debit", "Balance"}, tbl.Labels)
	assert.Equal(t, [][]string{
		{"Statement", "", "", ""},
		{"Date", "Descrip?tion", "Debit", "Balance"},
		{"2024-01-02", "Coffee", "3.50", "96.50"},
		{"2024-01-03", "Salary", "", ""},
		{"2024-01-04", "Rent", "", ""},
	}, tbl.Rows)
}

func TestReadLayout_HeaderRowNeedsKeyword(t *testing.T) {
	in := `{"page_number": 1, "analysis": {"tables": [
	  {"columns": ["A", "B", "C", "D"], "rows": [
	    {"A": "w", "B": "x", "C": "y", "D": "z"},
	    {"A": "1", "B": "2", "C": "3", "D": "4"},
	    {"A": "5", "B": "6", "C": "7", "D": "8"}
	  ]}
	]}}`

	tbl, err := ReadLayout(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C", "D"}, tbl.Labels)
	assert.Equal(t, [][]string{{"w", "x", "y", "z"}, {"1", "2", "3", "4"}}, tbl.Rows)
}

func TestReadLayout_SinglePage(t *testing.T) {
	in := `{"page_number": 1, "analysis": {"tables": [{"columns": ["A"], "rows": [{"A": "x"}, {"A": "y"}]}]}}`

	tbl, err := ReadLayout(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x"}}, tbl.Rows)

	_, err = ReadLayout(strings.NewReader(`{"page_number": 1, "analysis": {"tables": []}}`))
	assert.ErrorIs(t, err, ErrEmptyTable)

	_, err = ReadLayout(strings.NewReader(`{"page_number": 1, "analysis": {"tables": [{"columns": ["A"], "rows": [{"A": "x"}]}]}}`))
	assert.ErrorIs(t, err, ErrEmptyTable, "a table needs a header and a data row")
}

func TestCleanHeader(t *testing.T) {
	assert.Equal(t, "Debit (EUR)", CleanHeader("Debit\n（EUR）?"))
	assert.Equal(t, "Saldo", CleanHeader("  Saldo  "))
}

// ============================================================================
// Open
// ============================================================================

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		err  bool
	}{
		{"page_1.csv", FormatCSV, false},
		{"PAGE_1.XLSX", FormatXLSX, false},
		{"page_1.html", FormatHTML, false},
		{"page_1.json", FormatJSON, false},
		{"page_1.layout.json", FormatLayout, false},
		{"page_1.png", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.err {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page_1.csv")
	require.NoError(t, os.WriteFile(path, []byte("0|1\nDate|Amount\n"), 0o644))

	tbl, err := Open(path, Options{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, []string{"Date", "Amount"}, tbl.Header)

	_, err = Open(filepath.Join(dir, "missing.csv"), Options{})
	assert.Error(t, err)
}
