package source

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

type jsonTable struct {
	Header []any   `json:"header"`
	Rows   [][]any `json:"rows"`
}

// ReadJSON reads {"header": [...], "rows": [[...]]}. The header is the label
// line; null cells become "".
func ReadJSON(r io.Reader) (*RawTable, error) {
	var doc jsonTable
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON table: %w", err)
	}
	if len(doc.Header) == 0 && len(doc.Rows) == 0 {
		return nil, ErrEmptyTable
	}

	records := make([][]string, 0, len(doc.Rows)+1)
	records = append(records, scalars(doc.Header))
	for _, row := range doc.Rows {
		records = append(records, scalars(row))
	}
	return fromRecords(records)
}

func scalars(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = scalarString(v)
	}
	return out
}

func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		b, _ := json.Marshal(x)
		return string(b)
	}
}
