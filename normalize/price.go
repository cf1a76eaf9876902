// Package normalize converts raw scraped fields into canonical product
// records. Everything here is a pure transform: malformed input degrades to
// a default value, never to an error.
package normalize

import (
	"strconv"
	"strings"
	"unicode"
)

// currencyPrefixes maps the symbols seen on distributor portals to ISO codes.
// Longer symbols first so "R$" wins over "$".
var currencyPrefixes = []struct {
	symbol string
	code   string
}{
	{"R$", "BRL"},
	{"US$", "USD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"$", "USD"},
	{"BRL", "BRL"},
	{"USD", "USD"},
	{"EUR", "EUR"},
}

// ParsePrice converts a locale-formatted price string into an amount and a
// currency code. It handles both comma-decimal ("R$ 1.234,56") and
// dot-decimal ("$1,234.56") conventions, detected by the position of the
// last separator. A string with no extractable digits yields 0 and an empty
// currency; a malformed price is a data-quality signal, not a failure.
func ParsePrice(text string) (amount float64, currency string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ""
	}

	currency, text = splitCurrency(text)

	var digits []rune
	for _, r := range text {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			digits = append(digits, r)
		}
	}
	if len(digits) == 0 {
		return 0, currency
	}

	cleaned := normalizeSeparators(string(digits))
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || amount < 0 {
		return 0, currency
	}
	return amount, currency
}

// DetectCurrency returns the ISO code of the first currency symbol found in
// the text, or empty when none is recognized.
func DetectCurrency(text string) string {
	code, _ := splitCurrency(text)
	return code
}

func splitCurrency(text string) (code, rest string) {
	for _, p := range currencyPrefixes {
		if strings.Contains(text, p.symbol) {
			return p.code, strings.ReplaceAll(text, p.symbol, "")
		}
	}
	return "", text
}

// normalizeSeparators rewrites a digit/separator run into strconv-parseable
// form. The last separator is decimal when it is followed by 1-2 digits, or
// when both separator kinds appear; everything before it is grouping.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma < 0 && lastDot < 0:
		return s
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the later one is the decimal point.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		return resolveSingleSeparator(s, lastComma, ",")
	default:
		return resolveSingleSeparator(s, lastDot, ".")
	}
}

func resolveSingleSeparator(s string, idx int, sep string) string {
	// More than one occurrence means grouping ("1.234.567").
	if strings.Count(s, sep) > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	trailing := len(s) - idx - 1
	if trailing == 3 {
		// Exactly three trailing digits reads as a thousands group
		// ("1,234" / "1.234").
		return strings.ReplaceAll(s, sep, "")
	}
	if sep == "," {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}
