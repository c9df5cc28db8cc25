package source

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxColspan bounds colspan expansion for malformed markup.
const maxColspan = 64

// ReadHTML reads the first <table> of an HTML or XML-ish document. Cells
// spanning several columns are repeated as empty cells after the first.
func ReadHTML(r io.Reader) (*RawTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrEmptyTable
	}

	var records [][]string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var record []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			record = append(record, cellText(cell))
			for i := 1; i < colspan(cell); i++ {
				record = append(record, "")
			}
		})
		if len(record) > 0 {
			records = append(records, record)
		}
	})

	return fromRecords(records)
}

func cellText(cell *goquery.Selection) string {
	return strings.Join(strings.Fields(cell.Text()), " ")
}

func colspan(cell *goquery.Selection) int {
	v, ok := cell.Attr("colspan")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxColspan)
}
