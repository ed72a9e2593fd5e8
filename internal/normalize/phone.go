package normalize

import "strings"

// normalizePhone produces E.164-style canonical numbers: "+" followed by
// 8 to 15 digits. Numbers without a country prefix get Options.DefaultCountry.
func normalizePhone(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	// Canonical fast path keeps normalization idempotent.
	if isCanonicalPhone(s) {
		return Result{Value: s, Transforms: transforms}
	}

	var b strings.Builder
	formatted := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '/' || r == '(' || r == ')':
			formatted = true
		default:
			return hardFail(FailInvalidPhone, "phone number contains invalid characters")
		}
	}

	num := b.String()
	if strings.HasPrefix(num, "00") {
		num = "+" + num[2:]
		formatted = true
	}
	if formatted {
		transforms = append(transforms, TransformPhoneFormat)
	}

	if !strings.HasPrefix(num, "+") {
		country := opts.DefaultCountry
		if country == "" {
			country = "+39"
		}
		num = country + num
		transforms = append(transforms, TransformDefaultCountry)
	}

	digits := len(num) - 1
	if digits < 8 || digits > 15 {
		return plausibleFail(num, FailPhoneLength, "phone number has an implausible digit count", transforms)
	}

	return Result{Value: num, Transforms: transforms}
}

func isCanonicalPhone(s string) bool {
	if !strings.HasPrefix(s, "+") {
		return false
	}
	rest := s[1:]
	if !isDigits(rest) {
		return false
	}
	return len(rest) >= 8 && len(rest) <= 15
}
