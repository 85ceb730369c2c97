package observation

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"radar/internal/pkg/convert"
	"radar/internal/pkg/text"

	"github.com/shopspring/decimal"
)

// DefaultTitleMax bounds stored titles.
const DefaultTitleMax = 200

// MaxProductIDDigits bounds the expansion of scientific-notation ids.
const MaxProductIDDigits = 64

var (
	disambiguatorRe = regexp.MustCompile(`\s*\(\d+\)\s*`)
	scientificRe    = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[eE][+]?[0-9]+$`)
	trailingZeroRe  = regexp.MustCompile(`\.0+$`)
)

// NormalizeCompetitor strips "(n)" account disambiguators, collapses
// whitespace and uppercases, so "Loja X (1)" and "loja x (2)" both become
// "LOJA X". The result is a fixpoint: NormalizeCompetitor(NormalizeCompetitor(s))
// equals NormalizeCompetitor(s).
func NormalizeCompetitor(name string) string {
	s := name
	for disambiguatorRe.MatchString(s) {
		s = disambiguatorRe.ReplaceAllStringFunc(s, joinGap)
	}
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}

// joinGap keeps a word boundary when the disambiguator was space-separated, so
// nested forms like "(1(2))" still collapse on the next pass.
func joinGap(match string) string {
	if strings.TrimSpace(match) != match {
		return " "
	}
	return ""
}

// NormalizeProductID cleans GTIN cells exported as floats ("7891234.0",
// "7.891234E+12").
func NormalizeProductID(raw string) string {
	s := strings.TrimSpace(raw)
	if scientificRe.MatchString(s) {
		if d, err := decimal.NewFromString(s); err == nil && expandable(d) {
			s = d.String()
		}
	}
	return trailingZeroRe.ReplaceAllString(s, "")
}

// expandable reports whether d prints in at most MaxProductIDDigits digits.
func expandable(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp < -MaxProductIDDigits || exp > MaxProductIDDigits {
		return false
	}
	return len(d.Coefficient().String())+max(exp, 0) <= MaxProductIDDigits
}

// Normalizer turns raw rows into observations.
type Normalizer struct {
	TitleMax int
}

// Normalize applies the default Normalizer.
func Normalize(raw RawRow, date time.Time, competitor string) Result {
	return Normalizer{}.Normalize(raw, date, competitor)
}

// Normalize never fails: malformed cells fall back to zero values and are
// reported as warnings.
func (n Normalizer) Normalize(raw RawRow, date time.Time, competitor string) Result {
	titleMax := n.TitleMax
	if titleMax <= 0 {
		titleMax = DefaultTitleMax
	}
	var warns []Warning
	warn := func(field, value, reason string) {
		warns = append(warns, Warning{Row: raw.Line, Field: field, Raw: value, Reason: reason})
	}

	obs := Observation{
		Date:       Day(date),
		Competitor: NormalizeCompetitor(competitor),
		ProductID:  NormalizeProductID(raw.ProductID),
		Brand:      strings.TrimSpace(raw.Brand),
		SKU:        strings.TrimSpace(raw.SKU),
	}

	title := strings.TrimSpace(raw.Title)
	obs.Title = text.Truncate(title, titleMax)
	if obs.Title != title {
		warn(FieldTitle, "", "truncated")
	}

	obs.Price = coercePrice(raw.Price, warn)
	obs.Stock = coerceCount(FieldStock, raw.Stock, warn)
	obs.UnitsSold = coerceCount(FieldUnitsSold, raw.UnitsSold, warn)
	if obs.ProductID == "" {
		warn(FieldProductID, raw.ProductID, "missing product id")
	}
	return Result{Observation: obs, Warnings: warns}
}

func coercePrice(raw string, warn func(field, value, reason string)) decimal.Decimal {
	d, err := convert.ParseDecimal(raw)
	switch {
	case errors.Is(err, convert.ErrEmpty):
		return decimal.Zero
	case errors.Is(err, convert.ErrOutOfRange):
		warn(FieldPrice, raw, "out of range, defaulted to 0")
		return decimal.Zero
	case err != nil:
		warn(FieldPrice, raw, "unparseable, defaulted to 0")
		return decimal.Zero
	case d.IsNegative():
		warn(FieldPrice, raw, "negative, clamped to 0")
		return decimal.Zero
	}
	return d
}

func coerceCount(field, raw string, warn func(field, value, reason string)) int64 {
	n, err := convert.ParseInt(raw)
	switch {
	case errors.Is(err, convert.ErrEmpty):
		return 0
	case errors.Is(err, convert.ErrOutOfRange):
		warn(field, raw, "out of range, defaulted to 0")
		return 0
	case err != nil:
		warn(field, raw, "unparseable, defaulted to 0")
		return 0
	case n < 0:
		warn(field, raw, "negative, clamped to 0")
		return 0
	}
	return n
}
