package transform

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// OperationType names one of the supported edit instructions.
type OperationType string

const (
	OpRegexReplace OperationType = "regex_replace"
	OpDeleteRows   OperationType = "delete_rows"
	OpDeleteCols   OperationType = "delete_cols"
	OpInsertColumn OperationType = "insert_column"
	OpMapColumn    OperationType = "map_column"
	OpMergeRows    OperationType = "merge_rows"
	OpMergeCols    OperationType = "merge_cols"
	OpSplitCols    OperationType = "split_cols"
	OpCopyItem     OperationType = "copy_item"
)

// Known reports whether t is one of the nine supported operation types.
func (t OperationType) Known() bool {
	switch t {
	case OpRegexReplace, OpDeleteRows, OpDeleteCols, OpInsertColumn, OpMapColumn,
		OpMergeRows, OpMergeCols, OpSplitCols, OpCopyItem:
		return true
	}
	return false
}

// Params is implemented by the parameter struct of every operation type.
type Params interface {
	Type() OperationType
	params()
}

// Operation is one decoded instruction. Params is nil for unknown types; Err is
// set when a known type's parameters could not be decoded. Index is the
// position of the element in the operation document it was decoded from and
// Item its position within a nested parameter list.
type Operation struct {
	Type   OperationType
	Params Params
	Err    error
	Index  int
	Item   int
}

// RowRange bounds the rows an operation applies to. Nil fields take the
// operation's default.
type RowRange struct {
	StartRow *Int `json:"start_row,omitempty"`
	EndRow   *Int `json:"end_row,omitempty"`
}

// Bounds resolves the range against a row count. A missing or negative end
// means rows. A negative start is treated as 0.
func (r *RowRange) Bounds(rows int) (start, end int) {
	start, end = 0, rows
	if r == nil {
		return start, end
	}
	if r.StartRow != nil && int(*r.StartRow) > 0 {
		start = int(*r.StartRow)
	}
	if r.EndRow != nil && int(*r.EndRow) >= 0 {
		end = int(*r.EndRow)
	}
	return start, end
}

// RegexRule is one find-and-replace pair.
type RegexRule struct {
	Regex       string `json:"regex"`
	Replacement Text   `json:"replacement"`
}

// RegexReplace applies its rules in order to every non-empty cell.
type RegexReplace struct {
	Rules []RegexRule
}

// DeleteRows removes rows by index.
type DeleteRows struct {
	RowIndices Ints `json:"row_indices"`
}

// DeleteCols removes whole columns. RowRange is accepted but not applied.
type DeleteCols struct {
	RowRange   *RowRange `json:"row_range,omitempty"`
	ColIndices Ints      `json:"col_indices"`
}

// InsertColumn inserts a named column filled with DefaultValue.
type InsertColumn struct {
	Name         Text `json:"name"`
	Position     Int  `json:"position"`
	DefaultValue Text `json:"default_value"`
}

// MapColumn renames header entries. RowRange is informational.
type MapColumn struct {
	HeaderName  Text      `json:"header_name"`
	ColumnIndex Ints      `json:"column_index"`
	RowRange    *RowRange `json:"row_range,omitempty"`
}

// MergeRows concatenates source rows into the target row.
type MergeRows struct {
	RowRange         *RowRange `json:"row_range,omitempty"`
	SourceRowIndices Ints      `json:"source_row_indices"`
	TargetRowIndex   *Int      `json:"target_row_index"`
}

// MergeCols concatenates source columns into the target column.
type MergeCols struct {
	RowRange         *RowRange `json:"row_range,omitempty"`
	TargetColIndex   *Int      `json:"target_col_index"`
	SourceColIndices Ints      `json:"source_col_indices"`
}

// SplitCols distributes regex capture groups of one column into others.
// Method, Parameters and DataMapping are carried for the instruction
// generator's benefit; only regex splitting is performed.
type SplitCols struct {
	RowRange       *RowRange         `json:"row_range,omitempty"`
	SourceColIndex *Int              `json:"source_col_index"`
	SplitLogic     string            `json:"split_logic"`
	Method         string            `json:"method,omitempty"`
	NumTargetCols  Int               `json:"num_target_cols"`
	Parameters     []json.RawMessage `json:"parameters,omitempty"`
	DataMapping    []json.RawMessage `json:"data_mapping,omitempty"`
	IndexCreated   Ints              `json:"index_created"`
}

// CopyItem copies one cell to another.
type CopyItem struct {
	FromRow Int `json:"from_row"`
	FromCol Int `json:"from_col"`
	ToRow   Int `json:"to_row"`
	ToCol   Int `json:"to_col"`
}

func (RegexReplace) Type() OperationType { return OpRegexReplace }
func (DeleteRows) Type() OperationType   { return OpDeleteRows }
func (DeleteCols) Type() OperationType   { return OpDeleteCols }
func (InsertColumn) Type() OperationType { return OpInsertColumn }
func (MapColumn) Type() OperationType    { return OpMapColumn }
func (MergeRows) Type() OperationType    { return OpMergeRows }
func (MergeCols) Type() OperationType    { return OpMergeCols }
func (SplitCols) Type() OperationType    { return OpSplitCols }
func (CopyItem) Type() OperationType     { return OpCopyItem }

func (RegexReplace) params() {}
func (DeleteRows) params()   {}
func (DeleteCols) params()   {}
func (InsertColumn) params() {}
func (MapColumn) params()    {}
func (MergeRows) params()    {}
func (MergeCols) params()    {}
func (SplitCols) params()    {}
func (CopyItem) params()     {}

// ============================================================================
// Decoding
// ============================================================================

// ErrMalformedOperations is returned when the operation document is not a list
// of operations.
var ErrMalformedOperations = errors.New("malformed operation list")

type wireOperation struct {
	OperationType OperationType   `json:"operation_type"`
	Operation     json.RawMessage `json:"operation"`
}

// DecodeOperations parses an operation document: either a bare JSON array or
// an object holding the array under "operations".
func DecodeOperations(data []byte) ([]Operation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var wire []wireOperation
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOperations, err)
		}
	case '{':
		var doc struct {
			Operations []wireOperation `json:"operations"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOperations, err)
		}
		wire = doc.Operations
	default:
		return nil, fmt.Errorf("%w: expected array or object", ErrMalformedOperations)
	}

	ops := make([]Operation, 0, len(wire))
	for i, w := range wire {
		for _, op := range expand(w) {
			op.Index = i
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// expand turns one wire element into one or more operations. The parameters
// may be given directly or as a list nested under the operation's name.
func expand(w wireOperation) []Operation {
	if !w.OperationType.Known() {
		return []Operation{{Type: w.OperationType}}
	}

	body := w.Operation
	if nested, ok := nestedList(body, string(w.OperationType)); ok {
		body = nested
	}

	if w.OperationType == OpRegexReplace {
		op := Operation{Type: OpRegexReplace}
		rules, err := decodeRegexRules(body)
		if err != nil {
			op.Err = err
			return []Operation{op}
		}
		op.Params = RegexReplace{Rules: rules}
		return []Operation{op}
	}

	var items []json.RawMessage
	if isArray(body) {
		if err := json.Unmarshal(body, &items); err != nil {
			return []Operation{{Type: w.OperationType, Err: err}}
		}
	} else {
		items = []json.RawMessage{body}
	}

	ops := make([]Operation, 0, len(items))
	for k, item := range items {
		p, err := decodeParams(w.OperationType, item)
		ops = append(ops, Operation{Type: w.OperationType, Params: p, Err: err, Item: k})
	}
	return ops
}

func decodeParams(t OperationType, raw json.RawMessage) (Params, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, fmt.Errorf("missing parameters for %s", t)
	}

	switch t {
	case OpDeleteRows:
		return decodeInto[DeleteRows](t, raw)
	case OpDeleteCols:
		return decodeInto[DeleteCols](t, raw)
	case OpInsertColumn:
		return decodeInto[InsertColumn](t, raw)
	case OpMapColumn:
		return decodeInto[MapColumn](t, raw)
	case OpMergeRows:
		return decodeInto[MergeRows](t, raw)
	case OpMergeCols:
		return decodeInto[MergeCols](t, raw)
	case OpSplitCols:
		return decodeInto[SplitCols](t, raw)
	case OpCopyItem:
		return decodeInto[CopyItem](t, raw)
	}
	return nil, fmt.Errorf("unsupported operation %s", t)
}

func decodeInto[T Params](t OperationType, raw json.RawMessage) (Params, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid %s parameters: %w", t, err)
	}
	return v, nil
}

func decodeRegexRules(raw json.RawMessage) ([]RegexRule, error) {
	var rules []RegexRule
	if isArray(raw) {
		if err := json.Unmarshal(raw, &rules); err != nil {
			return nil, fmt.Errorf("invalid regex_replace parameters: %w", err)
		}
		return rules, nil
	}

	var single RegexRule
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("invalid regex_replace parameters: %w", err)
	}
	return []RegexRule{single}, nil
}

// nestedList returns obj[key] when raw is an object containing key.
func nestedList(raw json.RawMessage, key string) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

// ============================================================================
// Lenient scalar types
// ============================================================================

// Int decodes from a JSON number or a numeric string.
type Int int

func (i *Int) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		*i = Int(int(f))
		return nil
	}
	return fmt.Errorf("cannot decode %s as integer", b)
}

// IntPtr returns a pointer to an Int holding v.
func IntPtr(v int) *Int {
	i := Int(v)
	return &i
}

// Ints decodes from a JSON list of integers or a single integer.
type Ints []int

func (is *Ints) UnmarshalJSON(b []byte) error {
	if isArray(b) {
		var raw []Int
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make([]int, len(raw))
		for k, v := range raw {
			out[k] = int(v)
		}
		*is = out
		return nil
	}

	var one Int
	if err := one.UnmarshalJSON(b); err != nil {
		return err
	}
	if strings.TrimSpace(string(b)) != "null" {
		*is = Ints{int(one)}
	}
	return nil
}

// Text decodes from any JSON scalar. null becomes "".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*t = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = Text(v)
	default:
		*t = Text(s)
	}
	return nil
}
