package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// CounterpartyExtractor pulls the other party's name out of a transaction
// description.
type CounterpartyExtractor struct {
	// StripPrefix is removed from the description before matching.
	StripPrefix *regexp.Regexp
	// Patterns are tried in order; the first capture group of the first
	// acceptable match is the counterparty.
	Patterns []*regexp.Regexp
	// MinLength is the number of characters a match must exceed to be accepted.
	MinLength int
	// FallbackWords is how many leading words to use when no pattern matches.
	FallbackWords int
	// FallbackMinWords is the fewest words the description needs for the fallback.
	FallbackMinWords int
}

// Extract returns the counterparty for description, or "" if there is none.
func (c CounterpartyExtractor) Extract(description string) string {
	text := strings.TrimSpace(normalizeSpaces(description))
	if text == "" {
		return ""
	}
	if c.StripPrefix != nil {
		text = c.StripPrefix.ReplaceAllString(text, "")
	}

	for _, re := range c.Patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if candidate == "" || len([]rune(candidate)) <= c.MinLength {
			continue
		}
		return truncateRunes(candidate, domain.MaxCounterpartyLength)
	}

	words := strings.Fields(text)
	if len(words) == 0 || len(words) < c.FallbackMinWords {
		return ""
	}
	if c.FallbackWords > 0 && len(words) > c.FallbackWords {
		words = words[:c.FallbackWords]
	}
	return truncateRunes(strings.Join(words, " "), domain.MaxCounterpartyLength)
}

// normalizeSpaces turns every Unicode space, such as the no-break spaces
// banks put in exported text, into an ASCII space so patterns can use \s.
func normalizeSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if r != ' ' && unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
