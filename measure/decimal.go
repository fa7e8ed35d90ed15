package measure

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DECIMAL NORMALIZER - Locale-free comma/dot resolution
// =============================================================================

// Normalize rewrites a free-form number so that '.' is the decimal point.
//
// Whichever of ',' and '.' occurs last is the decimal separator. Every
// occurrence of the other symbol is dropped as a grouping separator and the
// decimal separator becomes '.'. A lone separator of either kind is taken as
// the decimal point, so "1,250" reads as 1.25; there is no locale setting.
//
//	"1.250,5" -> "1250.5"
//	"1,250.5" -> "1250.5"
//	"3,4"     -> "3.4"
//	"1250"    -> "1250"
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case lastDot > lastComma:
		s = strings.ReplaceAll(s, ",", "")
	}
	return s
}

// Parse normalizes raw and parses it as a number.
// Returns ErrEmpty for blank input and ErrNotNumeric for anything else that
// does not parse, including values outside the float64 range.
func Parse(raw string) (float64, error) {
	s := Normalize(raw)
	if s == "" {
		return 0, ErrEmpty
	}

	// decimal defines the accepted grammar; the float conversion stays in
	// strconv so huge exponents fail fast with ErrRange.
	if _, err := decimal.NewFromString(s); err != nil {
		return 0, ErrNotNumeric
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrNotNumeric
	}
	return f, nil
}
