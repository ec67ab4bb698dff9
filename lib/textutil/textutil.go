package textutil

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName returns the first matcher contained in the normalized name, and
// whether there was one at all.
func MatchName(name string, matchers []string) (string, bool) {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return m, true
		}
	}
	return "", false
}

// CollapseWhitespace trims s and replaces every run of whitespace with a
// single space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

var currencyReplacer = strings.NewReplacer(
	"R$", "",
	"$", "",
	"€", "",
	"\u00a0", "",
	" ", "",
)

// ParseDecimal parses numbers written either with a dot or a comma as the
// decimal separator ("10,5" and "10.5" are both 10.5). When both separators
// are present the last one is the decimal separator and the other is treated
// as a thousands separator ("1.234,56" is 1234.56). Anything unparsable
// returns def.
func ParseDecimal(s string, def float64) float64 {
	s = currencyReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return def
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	default:
		s = strings.ReplaceAll(s, ",", ".")
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}
	return value
}

// ParseQuantity parses an order quantity, anything missing, non-numeric or
// not positive becomes 1. Fractional quantities are truncated.
func ParseQuantity(s string) int {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f := ParseDecimal(s, 0)
		if f >= math.MaxInt32 {
			return 1
		}
		n = int(f)
	}
	if n <= 0 {
		return 1
	}
	return n
}
