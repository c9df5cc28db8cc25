package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// candidate delimiters in tie-break order
var delimiters = []rune{';', '\t', ',', '|'}

const sniffLines = 10

// ReadCSV reads a delimited table. A zero delimiter is detected from the
// first lines of the input. Records may have different lengths.
func ReadCSV(r io.Reader, delimiter rune) (*RawTable, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if delimiter == 0 {
		delimiter = DetectDelimiter(data)
	}

	reader := newCSVReader(bytes.NewReader(data), delimiter)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	return fromRecords(records)
}

func newCSVReader(in io.Reader, delimiter rune) gocsv.CSVReader {
	r := csv.NewReader(in)
	r.Comma = delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r
}

// DetectDelimiter picks the delimiter that splits the first non-empty lines
// most consistently. It falls back to ',' when nothing matches.
func DetectDelimiter(data []byte) rune {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() && len(lines) < sniffLines {
		line := cleanLine(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestScore := ',', 0
	for _, d := range delimiters {
		score := delimiterScore(lines, d)
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

// delimiterScore rewards delimiters that appear on many lines with the same
// count, so a stray comma in one description does not win.
func delimiterScore(lines []string, d rune) int {
	counts := make(map[int]int)
	for _, line := range lines {
		if n := strings.Count(line, string(d)); n > 0 {
			counts[n]++
		}
	}

	score := 0
	for n, lineCount := range counts {
		if s := n * lineCount * lineCount; s > score {
			score = s
		}
	}
	return score
}

func cleanLine(line string) string {
	line = strings.TrimPrefix(line, "\ufeff")
	line = strings.TrimRight(line, "\r")
	return strings.TrimSpace(line)
}

// WriteCSV writes records with a comma delimiter.
func WriteCSV(w io.Writer, records [][]string) error {
	cw := gocsv.DefaultCSVWriter(w)
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// ReadRecords reads every record of a comma-separated file without treating
// any line as labels.
func ReadRecords(r io.Reader) ([][]string, error) {
	records, err := newCSVReader(r, ',').ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return records, nil
}
