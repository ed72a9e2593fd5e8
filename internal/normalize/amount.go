package normalize

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Canonical amount form: fixed two-decimal value, one space, ISO 4217 code.
// Example: "1200.50 EUR".

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"€", "EUR"},
	{"$", "USD"},
	{"£", "GBP"},
}

var currencyCodes = []string{"EUR", "USD", "GBP", "CHF"}

func normalizeAmount(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	if isCanonicalAmount(s) {
		return Result{Value: s, Transforms: transforms}
	}

	currency, num := extractCurrency(s)
	if currency == "" {
		currency = opts.DefaultCurrency
		if currency == "" {
			currency = "EUR"
		}
	}
	num = strings.ReplaceAll(num, " ", "")
	if num == "" {
		return hardFail(FailUnparseableAmount, "no numeric part")
	}

	dots := strings.Count(num, ".")
	commas := strings.Count(num, ",")
	switch {
	case dots > 0 && commas > 0:
		// Rightmost separator wins as the decimal mark.
		if strings.LastIndex(num, ".") > strings.LastIndex(num, ",") {
			num = strings.ReplaceAll(num, ",", "")
		} else {
			num = strings.ReplaceAll(num, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		}
	case commas == 1 && trailingGroup(num, ",") == 3:
		// A lone comma before three digits reads as a thousands mark.
		num = strings.ReplaceAll(num, ",", "")
		transforms = append(transforms, TransformThousandsSep)
	case commas == 1:
		num = strings.Replace(num, ",", ".", 1)
	case commas > 1:
		num = strings.ReplaceAll(num, ",", "")
	case dots == 1 && trailingGroup(num, ".") == 3:
		num = strings.ReplaceAll(num, ".", "")
		transforms = append(transforms, TransformThousandsSep)
	case dots == 1:
		transforms = append(transforms, TransformDecimalDot)
	case dots > 1:
		num = strings.ReplaceAll(num, ".", "")
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return hardFail(FailUnparseableAmount, "not a number: "+s)
	}

	value := d.StringFixed(2) + " " + currency
	if value != s && !hasAmountTag(transforms) {
		transforms = append(transforms, TransformAmountFormat)
	}
	return Result{Value: value, Transforms: transforms}
}

func hasAmountTag(transforms []string) bool {
	for _, t := range transforms {
		switch t {
		case TransformAmountFormat, TransformThousandsSep, TransformDecimalDot:
			return true
		}
	}
	return false
}

// extractCurrency pulls a currency symbol or code out of the value,
// returning the ISO code and the remaining numeric text.
func extractCurrency(s string) (code, rest string) {
	for _, c := range currencySymbols {
		if strings.Contains(s, c.symbol) {
			return c.code, strings.TrimSpace(strings.ReplaceAll(s, c.symbol, ""))
		}
	}
	up := strings.ToUpper(s)
	for _, c := range currencyCodes {
		if strings.HasSuffix(up, c) {
			return c, strings.TrimSpace(s[:len(s)-len(c)])
		}
		if strings.HasPrefix(up, c) {
			return c, strings.TrimSpace(s[len(c):])
		}
	}
	return "", s
}

func trailingGroup(num, sep string) int {
	idx := strings.LastIndex(num, sep)
	return len(num) - idx - 1
}

func isCanonicalAmount(s string) bool {
	space := strings.IndexByte(s, ' ')
	if space < 0 || space != len(s)-4 {
		return false
	}
	cur := s[space+1:]
	known := false
	for _, c := range currencyCodes {
		if cur == c {
			known = true
			break
		}
	}
	if !known {
		return false
	}
	num := s[:space]
	num = strings.TrimPrefix(num, "-")
	dot := strings.IndexByte(num, '.')
	if dot <= 0 || len(num)-dot-1 != 2 {
		return false
	}
	return isDigits(num[:dot]) && isDigits(num[dot+1:])
}
