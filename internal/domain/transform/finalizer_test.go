package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFinalize(t *testing.T) {
	t.Run("header matches width", func(t *testing.T) {
		tbl := newTable([]string{"Date", "Amount"}, [][]string{{"01/01/2024", "1.00"}})

		res, err := Finalize(tbl, discardLogger())

		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Amount"}, res.Columns)
		assert.False(t, res.Positional)
		assert.Equal(t, [][]string{{"Date", "Amount"}, {"01/01/2024", "1.00"}}, res.Records())
	})

	t.Run("mismatch uses positional names", func(t *testing.T) {
		tbl := newTable([]string{"Date"}, [][]string{{"a", "b", "c"}})

		res, err := Finalize(tbl, discardLogger())

		require.NoError(t, err)
		assert.True(t, res.Positional)
		assert.Equal(t, []string{"0", "1", "2"}, res.Columns)
		assert.Len(t, res.Columns, tbl.Matrix.Cols())
	})

	t.Run("no rows fails", func(t *testing.T) {
		tbl := &Table{Header: []string{"A"}, Matrix: NewMatrixWidth(nil, 1)}

		res, err := Finalize(tbl, discardLogger())

		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrNoRows)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("result does not alias the table", func(t *testing.T) {
		tbl := newTable([]string{"A"}, [][]string{{"x"}})
		res, err := Finalize(tbl, discardLogger())
		require.NoError(t, err)

		tbl.Matrix.Set(0, 0, "y")
		tbl.Header[0] = "B"

		assert.Equal(t, "x", res.Rows[0][0])
		assert.Equal(t, "A", res.Columns[0])
	})
}
