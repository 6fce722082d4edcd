// Package price normalizes the human-formatted price strings the target
// site renders ("€1.6K", "US$ 1.234,50") into numeric values.
package price

import (
	"strconv"
	"strings"
	"unicode"
)

// symbols maps leading currency glyphs to ISO codes. The site only ever
// renders a handful of currencies on calendar widgets.
var symbols = []struct {
	glyph string
	code  string
}{
	{"€", "EUR"},
	{"US$", "USD"},
	{"$", "USD"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
}

// Parse converts a formatted price string to its numeric value. Currency
// glyphs and whitespace are stripped; a trailing "K" or "M" multiplies the
// mantissa by 1e3 or 1e6. Decimal comma and point are both accepted.
// Empty or unparseable input yields 0: callers treat 0 as "price unknown"
// and keep scraping, so this never returns an error.
func Parse(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1e3
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"):
		mult = 1e6
		s = s[:len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	t := strings.ReplaceAll(b.String(), ",", ".")

	// With more than one separator left, everything but the last one is a
	// thousands separator.
	if n := strings.Count(t, "."); n > 1 {
		last := strings.LastIndex(t, ".")
		t = strings.ReplaceAll(t[:last], ".", "") + t[last:]
	}

	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0
	}
	return v * mult
}

// Currency returns the ISO code of the leading currency glyph in raw, or
// fallback when none of the known glyphs match.
func Currency(raw, fallback string) string {
	s := strings.TrimSpace(raw)
	for _, sym := range symbols {
		if strings.HasPrefix(s, sym.glyph) {
			return sym.code
		}
	}
	return fallback
}
