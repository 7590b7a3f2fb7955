package normalize

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	"2.1.2006",
	"2/1/2006",
	"2006-1-2",
	"2-1-2006",
	"2.1.06",
}

// ParseDate parses a statement date. Only the leading date portion is
// considered, so "01.02.2024 13:45" parses as 2024-02-01.
func ParseDate(s string) (time.Time, error) {
	candidate := strings.TrimSpace(s)
	if fields := strings.Fields(candidate); len(fields) > 0 {
		candidate = fields[0]
	}
	if r := []rune(candidate); len(r) > 10 {
		candidate = string(r[:10])
	}
	if candidate == "" {
		return time.Time{}, fmt.Errorf("parse date: empty value")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: no matching format", s)
}
