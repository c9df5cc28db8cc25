package eval

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// HeaderPosition is a common header found at the same position in both tables.
type HeaderPosition struct {
	Header   string
	Position int
}

// HeaderMove is a common header found at different positions.
type HeaderMove struct {
	Header           string
	ExpectedPosition int
	ActualPosition   int
}

// SimilarHeader pairs headers present on one side only that look alike.
type SimilarHeader struct {
	Expected   string
	Actual     string
	Similarity float64
}

// HeaderComparison describes how two header lines agree.
type HeaderComparison struct {
	ExpectedCount    int
	ActualCount      int
	Common           []string
	OnlyExpected     []string
	OnlyActual       []string
	OrderMatches     []HeaderPosition
	OrderDifferences []HeaderMove
	Similar          []SimilarHeader
	MatchPercentage  float64
	Identical        bool
	SameOrder        bool
}

// CompareHeaders compares header lines as sets, checks the position of each
// common header and pairs one-sided headers whose similarity reaches
// threshold. Results keep the order headers first appear in.
func CompareHeaders(expected, actual []string, threshold float64) HeaderComparison {
	hc := HeaderComparison{
		ExpectedCount: len(expected),
		ActualCount:   len(actual),
		Identical:     slices.Equal(expected, actual),
	}

	for _, h := range unique(expected) {
		if slices.Contains(actual, h) {
			hc.Common = append(hc.Common, h)
		} else {
			hc.OnlyExpected = append(hc.OnlyExpected, h)
		}
	}
	for _, h := range unique(actual) {
		if !slices.Contains(expected, h) {
			hc.OnlyActual = append(hc.OnlyActual, h)
		}
	}

	for _, h := range hc.Common {
		pe, pa := slices.Index(expected, h), slices.Index(actual, h)
		if pe == pa {
			hc.OrderMatches = append(hc.OrderMatches, HeaderPosition{Header: h, Position: pe})
		} else {
			hc.OrderDifferences = append(hc.OrderDifferences, HeaderMove{Header: h, ExpectedPosition: pe, ActualPosition: pa})
		}
	}

	for _, he := range hc.OnlyExpected {
		for _, ha := range hc.OnlyActual {
			if s := Similarity(he, ha); s >= threshold {
				hc.Similar = append(hc.Similar, SimilarHeader{Expected: he, Actual: ha, Similarity: round(s, 3)})
			}
		}
	}

	total := len(hc.Common) + len(hc.OnlyExpected) + len(hc.OnlyActual)
	hc.MatchPercentage = percent(len(hc.Common), total)
	hc.SameOrder = len(hc.OrderDifferences) == 0 &&
		len(hc.Common) == len(expected) && len(hc.Common) == len(actual)

	return hc
}

// Similarity is a case-insensitive edit-distance ratio in [0, 1].
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
