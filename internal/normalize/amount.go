// Package normalize turns the loosely formatted strings found in bank
// statements into amounts, dates and file extensions.
package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrEmptyAmount is returned for blank cells and placeholder dashes.
var ErrEmptyAmount = errors.New("empty amount")

// ParseAmount parses a statement amount into a signed decimal.
//
// Whitespace (including non-breaking spaces used as thousands separators) is
// removed and commas are read as dots. When more than one dot remains, every
// dot but the last is a thousands separator and the last is the decimal point.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '\u00a0', r == '\u202f', r == '\'':
			return -1
		case r == ',':
			return '.'
		case r == '\u2212', r == '\u2013':
			return '-'
		}
		return r
	}, s)

	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, ErrEmptyAmount
	}

	if parts := strings.Split(cleaned, "."); len(parts) > 2 {
		cleaned = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// ParseOptionalAmount is ParseAmount for cells that may legitimately be blank.
// A blank cell yields zero and ok=false.
func ParseOptionalAmount(s string) (d decimal.Decimal, ok bool, err error) {
	d, err = ParseAmount(s)
	if errors.Is(err, ErrEmptyAmount) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}
