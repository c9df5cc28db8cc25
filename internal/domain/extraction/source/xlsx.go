package source

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// sheet names preferred when no sheet is requested
var preferredSheets = []string{
	"transactions", "movimentos", "extrato",
	"statement", "table", "data", "sheet1",
}

// ReadXLSX reads the rows of one worksheet. Trailing empty cells excelize
// omits are padded later by the engine.
func ReadXLSX(r io.Reader, sheet string) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = findSheet(f.GetSheetList())
	}
	if sheet == "" {
		return nil, fmt.Errorf("no suitable sheet found")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	return fromRecords(rows)
}

func findSheet(sheets []string) string {
	if len(sheets) == 0 {
		return ""
	}

	for _, preferred := range preferredSheets {
		for _, sheet := range sheets {
			if strings.EqualFold(sheet, preferred) {
				return sheet
			}
		}
	}

	return sheets[0]
}
