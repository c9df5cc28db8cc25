package eval

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
)

// Field is a bank statement column kind.
type Field string

const (
	FieldDate        Field = "date"
	FieldCredit      Field = "credit"
	FieldDebit       Field = "debit"
	FieldDescription Field = "description"
	FieldBalance     Field = "balance"
)

// Fields lists the scored fields in report order.
var Fields = []Field{FieldDate, FieldCredit, FieldDebit, FieldDescription, FieldBalance}

// column name patterns per field, most specific first
var fieldPatterns = map[Field][]string{
	FieldDate:        {"date", "transaction_date", "trans_date", "posting_date", "value_date"},
	FieldCredit:      {"credit", "deposit", "credit_amount", "deposits", "cr"},
	FieldDebit:       {"debit", "withdrawal", "debit_amount", "withdrawals", "dr"},
	FieldDescription: {"description", "narrative", "details", "transaction_details", "particulars", "memo"},
	FieldBalance:     {"balance", "running_balance", "available_balance", "closing_balance", "current_balance"},
}

// patterns this short only match a whole column name
const minSubstringPattern = 3

// FieldScores holds the column score of the column matched to each field.
// Columns maps a field to the column it was matched to; unmatched fields
// score 0.
type FieldScores struct {
	Date        float64
	Credit      float64
	Debit       float64
	Description float64
	Balance     float64
	Columns     map[Field]string
}

// Score returns the score of one field.
func (s FieldScores) Score(f Field) float64 {
	switch f {
	case FieldDate:
		return s.Date
	case FieldCredit:
		return s.Credit
	case FieldDebit:
		return s.Debit
	case FieldDescription:
		return s.Description
	case FieldBalance:
		return s.Balance
	}
	return 0
}

// Map returns the scores keyed by "<field>_score".
func (s FieldScores) Map() map[string]float64 {
	out := make(map[string]float64, len(Fields))
	for _, f := range Fields {
		out[string(f)+"_score"] = s.Score(f)
	}
	return out
}

// FieldMatcher finds the column holding each bank statement field.
type FieldMatcher struct {
	mu       sync.Mutex // the automaton keeps match state
	matcher  *ahocorasick.Matcher
	patterns []string
}

// NewFieldMatcher builds one automaton over every field pattern.
func NewFieldMatcher() *FieldMatcher {
	var patterns []string
	seen := make(map[string]bool)
	for _, f := range Fields {
		for _, p := range fieldPatterns[f] {
			if !seen[p] {
				seen[p] = true
				patterns = append(patterns, p)
			}
		}
	}
	return &FieldMatcher{
		matcher:  ahocorasick.NewStringMatcher(patterns),
		patterns: patterns,
	}
}

// Match returns the column chosen for each field. A column whose lowercased
// name equals a pattern wins; otherwise the first pattern, in field order,
// contained in a column name picks that column.
func (fm *FieldMatcher) Match(columns []string) map[Field]string {
	lower := make([]string, len(columns))
	contains := make([]map[string]bool, len(columns))

	fm.mu.Lock()
	for i, c := range columns {
		lower[i] = strings.ToLower(c)
		contains[i] = make(map[string]bool)
		for _, idx := range fm.matcher.Match([]byte(lower[i])) {
			contains[i][fm.patterns[idx]] = true
		}
	}
	fm.mu.Unlock()

	out := make(map[Field]string)
	for _, f := range Fields {
		if col, ok := matchField(fieldPatterns[f], columns, lower, contains); ok {
			out[f] = col
		}
	}
	return out
}

func matchField(patterns, columns, lower []string, contains []map[string]bool) (string, bool) {
	for _, p := range patterns {
		for i := range columns {
			if lower[i] == p {
				return columns[i], true
			}
		}
	}
	for _, p := range patterns {
		if len(p) < minSubstringPattern {
			continue
		}
		for i := range columns {
			if contains[i][p] {
				return columns[i], true
			}
		}
	}
	return "", false
}

var defaultFieldMatcher = NewFieldMatcher()

// ScoreFields maps column scores onto the bank statement fields.
func ScoreFields(columnScores map[string]float64, columns []string) FieldScores {
	matched := defaultFieldMatcher.Match(columns)
	score := func(f Field) float64 {
		col, ok := matched[f]
		if !ok {
			return 0
		}
		return columnScores[col]
	}

	return FieldScores{
		Date:        score(FieldDate),
		Credit:      score(FieldCredit),
		Debit:       score(FieldDebit),
		Description: score(FieldDescription),
		Balance:     score(FieldBalance),
		Columns:     matched,
	}
}
