// Package testdata generates realistic bank-statement tables for tests using gofakeit.
package testdata

import (
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// StatementColumns is the canonical column set of a generated statement.
var StatementColumns = []string{"Date", "Description", "Debit", "Credit", "Balance"}

// Generator produces statement tables and the OCR artifacts seen in raw extractions.
type Generator struct {
	faker *gofakeit.Faker
}

// NewGenerator creates a generator with a random seed.
func NewGenerator() *Generator {
	return &Generator{faker: gofakeit.New(0)}
}

// NewGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewGeneratorWithSeed(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// ============================================================================
// Statement rows
// ============================================================================

// Statement returns n transaction rows in StatementColumns order with a
// running balance. Debit rows leave Credit empty and vice versa.
func (g *Generator) Statement(n int) [][]string {
	balance := decimal.NewFromFloat(g.faker.Float64Range(500, 10000)).Round(2)
	day := g.faker.DateRange(time.Now().AddDate(-1, 0, 0), time.Now().AddDate(0, -1, 0))

	rows := make([][]string, n)
	for i := range rows {
		day = day.AddDate(0, 0, g.faker.Number(0, 3))
		amount := decimal.NewFromFloat(g.faker.Float64Range(1, 900)).Round(2)

		debit, credit := "", ""
		if g.faker.Number(0, 3) == 0 {
			credit = amount.StringFixed(2)
			balance = balance.Add(amount)
		} else {
			debit = amount.StringFixed(2)
			balance = balance.Sub(amount)
		}

		rows[i] = []string{
			day.Format("02/01/2006"),
			g.Description(),
			debit,
			credit,
			balance.StringFixed(2),
		}
	}
	return rows
}

// Description returns a statement-style narrative.
func (g *Generator) Description() string {
	prefix := descriptionPrefixes[g.faker.Number(0, len(descriptionPrefixes)-1)]
	return strings.ToUpper(prefix + " " + g.faker.Company())
}

// Matrix returns a rows x cols grid of short random words.
func (g *Generator) Matrix(rows, cols int) [][]string {
	out := make([][]string, rows)
	for r := range out {
		out[r] = make([]string, cols)
		for c := range out[r] {
			out[r][c] = g.faker.Word()
		}
	}
	return out
}

// Indices returns n random integers in [lo, hi], duplicates allowed.
func (g *Generator) Indices(n, lo, hi int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = g.faker.Number(lo, hi)
	}
	return out
}

// Number returns a random integer in [lo, hi].
func (g *Generator) Number(lo, hi int) int {
	return g.faker.Number(lo, hi)
}

// ============================================================================
// Extraction artifacts
// ============================================================================

// WithWrappedDescriptions splits some descriptions onto a continuation row,
// the way OCR emits a narrative that wraps in the printed statement. It
// returns the new rows and the indices of the continuation rows.
func (g *Generator) WithWrappedDescriptions(rows [][]string) ([][]string, []int) {
	var (
		out   [][]string
		conts []int
	)
	for _, row := range rows {
		words := strings.Fields(row[1])
		if len(words) < 3 || !g.faker.Bool() {
			out = append(out, row)
			continue
		}
		cut := len(words) / 2
		first := append([]string(nil), row...)
		first[1] = strings.Join(words[:cut], " ")
		cont := make([]string, len(row))
		cont[1] = strings.Join(words[cut:], " ")

		out = append(out, first)
		conts = append(conts, len(out))
		out = append(out, cont)
	}
	return out, conts
}

var descriptionPrefixes = []string{
	"POS PURCHASE", "DIRECT DEBIT", "CARD PAYMENT", "FASTER PAYMENT",
	"STANDING ORDER", "BANK GIRO CREDIT", "ATM WITHDRAWAL", "TRANSFER TO",
	"TRANSFER FROM", "CONTACTLESS", "BILL PAYMENT", "INTEREST PAID",
}
