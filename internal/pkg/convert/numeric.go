// Package convert parses the numeric cells found in marketplace exports.
package convert

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrEmpty reports a blank cell. Callers usually treat it as "missing" rather
// than malformed.
var ErrEmpty = errors.New("empty value")

// ErrOutOfRange reports a parsable number too large or too precise to store.
var ErrOutOfRange = errors.New("value out of range")

// MaxExponent bounds the base-10 exponent ParseDecimal accepts in either
// direction. Larger exponents would expand to huge integers downstream.
const MaxExponent = 20

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// ParseDecimal parses dirty numeric text such as "129.90", "129,90",
// "R$ 1.234,56", "1,234.56" or "7.89E+12".
//
// A single comma is read as a decimal separator; repeated commas or dots are
// thousands separators; when both appear, the last one is the decimal mark.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	cleaned, err := stripNoise(s)
	if err != nil {
		return decimal.Zero, err
	}
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, fmt.Errorf("no digits in %q", raw)
	}
	cleaned = normalizeSeparators(cleaned)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %q: %w", raw, err)
	}
	if exp := d.Exponent(); exp > MaxExponent || exp < -MaxExponent {
		return decimal.Zero, fmt.Errorf("parse %q: exponent %d: %w", raw, exp, ErrOutOfRange)
	}
	return d, nil
}

// ParseInt parses an integer cell, truncating fractional exports like "25.0".
func ParseInt(raw string) (int64, error) {
	d, err := ParseDecimal(raw)
	if err != nil {
		return 0, err
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		return 0, fmt.Errorf("parse %q: %w", raw, ErrOutOfRange)
	}
	return d.IntPart(), nil
}

func stripNoise(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == ',', r == '.', r == '-', r == '+':
			b.WriteRune(r)
		case r == 'e' || r == 'E':
			b.WriteRune('E')
		case r == '$' || r == '€' || r == '£' || unicode.IsSpace(r) || r == ' ':
			// currency marks and grouping spaces
		case r == 'R' || r == 'U' || r == 'S':
			// "R$", "US$"
		default:
			return "", fmt.Errorf("unexpected character %q in %q", r, s)
		}
	}
	return b.String(), nil
}

func normalizeSeparators(s string) string {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}
