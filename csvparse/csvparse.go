// Package csvparse tokenizes delimited export text into a grid of string fields.
//
// encoding/csv is not used: it rejects bare quotes inside unquoted fields and
// cannot sense the delimiter, both of which vendor exports rely on.
package csvparse

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned when a quoted field is still open at end of input.
var ErrUnterminatedQuote = errors.New("CSV parse error: unterminated quoted field")

// Grid is an ordered list of rows of fields.
type Grid [][]string

// Candidate delimiters in tie-break order.
var delimiters = []rune{',', ';', '\t'}

// DetectDelimiter inspects the first non-blank line and returns the candidate that
// occurs most often outside quotes. Comma wins ties and the all-zero case.
func DetectDelimiter(text string) rune {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		counts := make(map[rune]int, len(delimiters))
		inQuotes := false
		for _, ch := range line {
			if ch == '"' {
				inQuotes = !inQuotes
				continue
			}
			if !inQuotes {
				counts[ch]++
			}
		}

		best, bestCount := ',', 0
		for _, d := range delimiters {
			if counts[d] > bestCount {
				best, bestCount = d, counts[d]
			}
		}
		return best
	}
	return ','
}

type state int

const (
	unquoted state = iota
	quoted
)

type tokenizer struct {
	delim rune
	state state
	field strings.Builder
	row   []string
	grid  Grid
}

func (t *tokenizer) endField() {
	t.row = append(t.row, strings.TrimSuffix(t.field.String(), "\r"))
	t.field.Reset()
}

func (t *tokenizer) endRow() {
	t.endField()
	if len(t.row) == 1 && t.row[0] == "" {
		t.row = nil
		return
	}
	t.grid = append(t.grid, t.row)
	t.row = nil
}

// Parse tokenizes text with the delimiter DetectDelimiter picks.
func Parse(text string) (Grid, error) {
	return ParseWith(text, DetectDelimiter(text))
}

// ParseWith tokenizes text using delim. Inside quotes the delimiter and newlines are
// literal and "" is an escaped quote. A carriage return ending a field is dropped.
// Lines holding a single empty field are skipped and trailing blank rows are trimmed.
func ParseWith(text string, delim rune) (Grid, error) {
	t := &tokenizer{delim: delim}
	runes := []rune(text)

	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if t.state == quoted {
			if ch == '"' {
				if i+1 < len(runes) && runes[i+1] == '"' {
					t.field.WriteRune('"')
					i++
				} else {
					t.state = unquoted
				}
				continue
			}
			t.field.WriteRune(ch)
			continue
		}

		switch ch {
		case '"':
			t.state = quoted
		case t.delim:
			t.endField()
		case '\n':
			t.endRow()
		default:
			t.field.WriteRune(ch)
		}
	}

	if t.state == quoted {
		return nil, ErrUnterminatedQuote
	}
	if t.field.Len() > 0 || len(t.row) > 0 {
		t.endRow()
	}

	grid := t.grid
	for len(grid) > 0 && IsBlankRow(grid[len(grid)-1]) {
		grid = grid[:len(grid)-1]
	}
	return grid, nil
}

// IsBlankRow reports whether every field is empty or whitespace.
func IsBlankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
