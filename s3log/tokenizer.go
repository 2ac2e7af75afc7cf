package s3log

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedLine is returned when a raw line cannot be normalized to a
// 24, 25, or 26 field record.
type ErrMalformedLine struct {
	FieldCount int
	Line       string
}

func (e *ErrMalformedLine) Error() string {
	return fmt.Sprintf("s3log: tokenized to %d fields (want 24-26): %q", e.FieldCount, e.Line)
}

// tokenPattern captures, in priority order per match: a quoted substring, a
// bracketed substring, or a maximal run of non-space characters. This is the
// same shape of pattern the upstream Python parser used, translated
// directly to Go's RE2-backed regexp package — RE2 has no lookaround, but
// none is needed here.
var tokenPattern = regexp.MustCompile(`"([^"]*)"|\[([^\]]*)\]|(\S+)`)

const maxQuoteRepairIterations = 1_000_000

// Tokenize splits one raw S3 log line into its positional fields, repairing
// embedded unescaped quotes when necessary, and normalizes the result to
// exactly 25 fields.
//
// Normalization: 24 fields get one trailing "-" appended (missing access
// point ARN); 25 fields pass through; 26 fields have the trailing field
// discarded (observed on certain HEAD requests).
func Tokenize(line string) ([]string, error) {
	tokens := tokenizeOnce(line)

	if len(tokens) > MaxFields {
		repaired, ok := repairEmbeddedQuotes(line)
		if ok {
			tokens = tokenizeOnce(repaired)
		}
	}

	switch len(tokens) {
	case MinFields:
		tokens = append(tokens, "-")
		return tokens, nil
	case MinFields + 1:
		return tokens, nil
	case MaxFields:
		return tokens[:MaxFields-1], nil
	default:
		return nil, &ErrMalformedLine{FieldCount: len(tokens), Line: line}
	}
}

func tokenizeOnce(line string) []string {
	matches := tokenPattern.FindAllStringSubmatch(line, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		switch {
		case m[1] != "" || (len(m[0]) >= 2 && m[0][0] == '"'):
			tokens = append(tokens, m[1])
		case m[2] != "" || (len(m[0]) >= 2 && m[0][0] == '['):
			tokens = append(tokens, m[2])
		default:
			tokens = append(tokens, m[3])
		}
	}
	return tokens
}

// repairEmbeddedQuotes handles historical lines with embedded unescaped
// quotes inside a quoted field (typically the user agent). It re-scans for
// ` "` / `" ` delimiter pairs; under the naive pairing open[i] <-> close[i],
// a well-formed line has close[i] fall strictly before open[i+1] for every
// i. One field with an embedded, unescaped quote contributes an extra
// open/close pair of its own, which shows up as close[i] landing after
// open[i+1] — the embedded pair's open arrives before the outer field's
// naively-paired close. When that happens, open[i] and close[i+1] are the
// true bounds of the corrupted field; everything between them is collapsed
// to the literal " - " and the caller re-tokenizes the result. If the
// delimiters are unbalanced, absent, or no mismatch is found, ok is false
// and the caller falls back to the original (malformed) tokenization.
func repairEmbeddedQuotes(line string) (string, bool) {
	openDelim, closeDelim := ` "`, `" `

	opens := findAllIndex(line, openDelim, maxQuoteRepairIterations)
	closes := findAllIndex(line, closeDelim, maxQuoteRepairIterations)

	if len(opens) == 0 || len(opens) != len(closes) {
		return "", false
	}

	for i := 0; i < len(opens)-1; i++ {
		if closes[i] <= opens[i+1] {
			continue
		}

		var b strings.Builder
		b.Grow(len(line))
		b.WriteString(line[:opens[i]+1]) // through the leading space
		b.WriteString(`" - "`)
		b.WriteString(line[closes[i+1]+1:]) // from the trailing space onward
		return b.String(), true
	}

	return "", false
}

// findAllIndex returns the start offsets of every non-overlapping
// occurrence of sep in s, bounded by maxIterations to defend against
// pathological inputs.
func findAllIndex(s, sep string, maxIterations int) []int {
	var positions []int
	start := 0
	for iterations := 0; iterations < maxIterations; iterations++ {
		idx := strings.Index(s[start:], sep)
		if idx < 0 {
			break
		}
		positions = append(positions, start+idx)
		start += idx + len(sep)
	}
	return positions
}
