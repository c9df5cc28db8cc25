package eval

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var statementColumns = []string{"Date", "Description", "Debit", "Credit", "Balance"}

// ============================================================================
// Compare
// ============================================================================

func TestCompare(t *testing.T) {
	expected := &Table{
		Name:    "expected.csv",
		Columns: statementColumns,
		Rows: [][]string{
			{"01/01", "Salary", "", "2000.00", "2000.00"},
			{"02/01", "Coffee", "3.50", "", "1996.50"},
		},
	}

	t.Run("buckets each kind of difference", func(t *testing.T) {
		actual := &Table{
			Name:    "actual.csv",
			Columns: statementColumns,
			Rows: [][]string{
				{"01/01", "Salary", "", "2000.00001", "2000"},
				{"02/01", "Coffe", "3.60", "abc", "1996.50"},
			},
		}

		rep := Compare(expected, actual, DefaultOptions())

		assert.Equal(t, 10, rep.CellsCompared)
		assert.Equal(t, 2, rep.RowsCompared)
		assert.Equal(t, 7, rep.Matches)
		assert.Equal(t, 3, rep.Differences)
		assert.Equal(t, 70.0, rep.MatchPercentage)

		require.Len(t, rep.StringDiffs, 1)
		assert.Equal(t, CellDiff{Row: 1, Column: "Description", Expected: "Coffee", Actual: "Coffe"}, rep.StringDiffs[0])

		require.Len(t, rep.NumericDiffs, 1)
		assert.Equal(t, "Debit", rep.NumericDiffs[0].Column)
		assert.True(t, rep.NumericDiffs[0].Difference.Equal(decimal.RequireFromString("0.1")))

		require.Len(t, rep.MissingValues, 1)
		assert.Equal(t, "Credit", rep.MissingValues[0].Column)
		assert.Empty(t, rep.TypeMismatches)

		assert.Equal(t, map[string]float64{
			"Date": 100, "Description": 50, "Debit": 50, "Credit": 50, "Balance": 100,
		}, rep.ColumnScores)
		assert.True(t, rep.Headers.Identical)
	})

	t.Run("bank fields take their column scores", func(t *testing.T) {
		actual := &Table{
			Columns: statementColumns,
			Rows: [][]string{
				{"01/01", "Salary", "", "2000.00", "2000.00"},
				{"02/01", "Coffee", "3.50", "", "0"},
			},
		}

		rep := Compare(expected, actual, DefaultOptions())

		assert.Equal(t, 100.0, rep.Fields.Date)
		assert.Equal(t, 100.0, rep.Fields.Credit)
		assert.Equal(t, 100.0, rep.Fields.Debit)
		assert.Equal(t, 100.0, rep.Fields.Description)
		assert.Equal(t, 50.0, rep.Fields.Balance)
		assert.Equal(t, 50.0, rep.Fields.Map()["balance_score"])
	})

	t.Run("number against text is a type mismatch", func(t *testing.T) {
		exp := &Table{Columns: []string{"Amount"}, Rows: [][]string{{"12.5"}}}
		act := &Table{Columns: []string{"Amount"}, Rows: [][]string{{"twelve"}}}

		rep := Compare(exp, act, DefaultOptions())

		require.Len(t, rep.TypeMismatches, 1)
		assert.Equal(t, "twelve", rep.TypeMismatches[0].Actual)
		assert.Empty(t, rep.StringDiffs)
		assert.Equal(t, 0.0, rep.MatchPercentage)
	})

	t.Run("NA tokens on both sides match", func(t *testing.T) {
		exp := &Table{Columns: []string{"Amount"}, Rows: [][]string{{"NaN"}, {"N/A"}}}
		act := &Table{Columns: []string{"Amount"}, Rows: [][]string{{""}, {"null"}}}

		rep := Compare(exp, act, DefaultOptions())

		assert.Equal(t, 2, rep.Matches)
		assert.Equal(t, 100.0, rep.MatchPercentage)
	})

	t.Run("column absent from actual counts as missing", func(t *testing.T) {
		actual := &Table{
			Columns: statementColumns[:4],
			Rows: [][]string{
				{"01/01", "Salary", "", "2000.00"},
				{"02/01", "Coffee", "3.50", ""},
			},
		}

		rep := Compare(expected, actual, DefaultOptions())

		assert.Equal(t, 8, rep.Matches)
		assert.Len(t, rep.MissingValues, 2)
		assert.Equal(t, 0.0, rep.ColumnScores["Balance"])
		assert.Equal(t, []string{"Balance"}, rep.Headers.OnlyExpected)
	})

	t.Run("short actual table counts trailing rows as missing", func(t *testing.T) {
		actual := &Table{Columns: statementColumns, Rows: expected.Rows[:1]}

		rep := Compare(expected, actual, DefaultOptions())

		// the blank Credit cell of row 1 is missing on both sides
		assert.Equal(t, 6, rep.Matches)
		assert.Len(t, rep.MissingValues, 4)
		assert.Equal(t, 60.0, rep.MatchPercentage)
	})

	t.Run("tolerance is configurable", func(t *testing.T) {
		exp := &Table{Columns: []string{"Amount"}, Rows: [][]string{{"10.00"}}}
		act := &Table{Columns: []string{"Amount"}, Rows: [][]string{{"10.04"}}}

		opts := DefaultOptions()
		assert.Equal(t, 0, Compare(exp, act, opts).Matches)

		opts.Tolerance = decimal.RequireFromString("0.05")
		assert.Equal(t, 1, Compare(exp, act, opts).Matches)
	})

	t.Run("empty expected table", func(t *testing.T) {
		rep := Compare(&Table{Columns: []string{"A"}}, &Table{Columns: []string{"A"}}, DefaultOptions())

		assert.Equal(t, 0, rep.CellsCompared)
		assert.Equal(t, 0.0, rep.MatchPercentage)
		assert.Equal(t, 0.0, rep.ColumnScores["A"])
	})
}

// ============================================================================
// Headers
// ============================================================================

func TestCompareHeaders(t *testing.T) {
	t.Run("sets positions and similar pairs", func(t *testing.T) {
		hc := CompareHeaders(
			[]string{"Date", "Description", "Amount", "Balance"},
			[]string{"Date", "Amount", "Descriptin", "Balance", "Extra"},
			0.8,
		)

		assert.Equal(t, 4, hc.ExpectedCount)
		assert.Equal(t, 5, hc.ActualCount)
		assert.Equal(t, []string{"Date", "Amount", "Balance"}, hc.Common)
		assert.Equal(t, []string{"Description"}, hc.OnlyExpected)
		assert.Equal(t, []string{"Descriptin", "Extra"}, hc.OnlyActual)
		assert.Equal(t, []HeaderPosition{{Header: "Date", Position: 0}, {Header: "Balance", Position: 3}}, hc.OrderMatches)
		assert.Equal(t, []HeaderMove{{Header: "Amount", ExpectedPosition: 2, ActualPosition: 1}}, hc.OrderDifferences)
		assert.Equal(t, []SimilarHeader{{Expected: "Description", Actual: "Descriptin", Similarity: 0.909}}, hc.Similar)
		assert.Equal(t, 50.0, hc.MatchPercentage)
		assert.False(t, hc.Identical)
		assert.False(t, hc.SameOrder)
	})

	t.Run("identical headers", func(t *testing.T) {
		hc := CompareHeaders(statementColumns, statementColumns, 0.8)

		assert.True(t, hc.Identical)
		assert.True(t, hc.SameOrder)
		assert.Equal(t, 100.0, hc.MatchPercentage)
		assert.Empty(t, hc.Similar)
	})

	t.Run("same set in another order", func(t *testing.T) {
		hc := CompareHeaders([]string{"A", "B"}, []string{"B", "A"}, 0.8)

		assert.Equal(t, 100.0, hc.MatchPercentage)
		assert.False(t, hc.SameOrder)
		assert.Len(t, hc.OrderDifferences, 2)
	})

	t.Run("threshold filters similar pairs", func(t *testing.T) {
		hc := CompareHeaders([]string{"Description"}, []string{"Descriptin"}, 0.95)
		assert.Empty(t, hc.Similar)
	})
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"Balance", "BALANCE", 1},
		{"abcd", "abce", 0.75},
		{"abc", "xyz", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

// ============================================================================
// Fields
// ============================================================================

func TestFieldMatcher(t *testing.T) {
	fm := NewFieldMatcher()

	t.Run("exact names and contained patterns", func(t *testing.T) {
		got := fm.Match([]string{"Description", "Cr", "Dr", "Transaction Date", "Running Balance"})

		assert.Equal(t, map[Field]string{
			FieldDate:        "Transaction Date",
			FieldCredit:      "Cr",
			FieldDebit:       "Dr",
			FieldDescription: "Description",
			FieldBalance:     "Running Balance",
		}, got)
	})

	t.Run("exact match beats a contained pattern", func(t *testing.T) {
		got := fm.Match([]string{"Value Date", "Date"})
		assert.Equal(t, "Date", got[FieldDate])
	})

	t.Run("short patterns need the whole name", func(t *testing.T) {
		got := fm.Match([]string{"Description", "Amount"})

		assert.NotContains(t, got, FieldCredit)
		assert.NotContains(t, got, FieldDebit)
		assert.Equal(t, "Description", got[FieldDescription])
	})

	t.Run("later patterns match when earlier ones do not", func(t *testing.T) {
		got := fm.Match([]string{"Deposits", "Withdrawals", "Particulars"})

		assert.Equal(t, "Deposits", got[FieldCredit])
		assert.Equal(t, "Withdrawals", got[FieldDebit])
		assert.Equal(t, "Particulars", got[FieldDescription])
	})
}

func TestScoreFields(t *testing.T) {
	scores := map[string]float64{"Date": 90, "Memo": 40, "": 75}

	got := ScoreFields(scores, []string{"Date", "Memo", ""})

	assert.Equal(t, 90.0, got.Date)
	assert.Equal(t, 40.0, got.Description)
	assert.Equal(t, 0.0, got.Credit, "unmatched fields score zero")
	assert.Equal(t, 0.0, got.Balance)
	assert.Equal(t, map[string]float64{
		"date_score": 90, "credit_score": 0, "debit_score": 0, "description_score": 40, "balance_score": 0,
	}, got.Map())
}

// ============================================================================
// Tables
// ============================================================================

func TestReadTable(t *testing.T) {
	t.Run("first record is the header", func(t *testing.T) {
		tbl, err := ReadTable(strings.NewReader("Date,Amount\n01/01,10\n02/01,\n"), "x.csv")
		require.NoError(t, err)

		assert.Equal(t, "x.csv", tbl.Name)
		assert.Equal(t, []string{"Date", "Amount"}, tbl.Columns)
		assert.Equal(t, [][]string{{"01/01", "10"}, {"02/01", ""}}, tbl.Rows)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := ReadTable(strings.NewReader(""), "empty.csv")
		assert.ErrorIs(t, err, ErrEmptyTable)
	})
}

func TestLoadTable_Missing(t *testing.T) {
	_, err := LoadTable(t.TempDir() + "/nope.csv")
	assert.Error(t, err)
}
