package normalize

import "strings"

// Identifier fields normalize to uppercase with whitespace stripped. Fiscal
// codes, IBANs and VAT numbers additionally carry check digits, which are
// verified here: a value with the right shape but a failed check keeps its
// cleaned form and is flagged as plausible-but-invalid.

func normalizeFiscalCode(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	code := strings.ToUpper(stripSpacing(s))
	if code != s {
		transforms = append(transforms, TransformCodeFormat)
	}

	if len(code) != 16 || !isUpperAlnum(code) {
		return hardFail(FailMalformedFiscal, "fiscal code must be 16 alphanumeric characters")
	}
	for i := 0; i < 6; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return hardFail(FailMalformedFiscal, "fiscal code must start with 6 letters")
		}
	}
	if code[15] < 'A' || code[15] > 'Z' {
		return hardFail(FailMalformedFiscal, "fiscal code check character must be a letter")
	}

	if fiscalCheckChar(code[:15]) != code[15] {
		return plausibleFail(code, FailFiscalChecksum, "fiscal code check character mismatch", transforms)
	}
	return Result{Value: code, Transforms: transforms}
}

func normalizeIBAN(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	code := strings.ToUpper(stripSpacing(s))
	if code != s {
		transforms = append(transforms, TransformCodeFormat)
	}

	if len(code) < 15 || len(code) > 34 || !isUpperAlnum(code) {
		return hardFail(FailMalformedIBAN, "IBAN length or charset invalid")
	}
	if !isLetter(code[0]) || !isLetter(code[1]) || !isDigits(code[2:4]) {
		return hardFail(FailMalformedIBAN, "IBAN must start with a country code and two check digits")
	}

	if ibanMod97(code) != 1 {
		return plausibleFail(code, FailIBANCheckDigits, "IBAN check digits do not verify", transforms)
	}
	return Result{Value: code, Transforms: transforms}
}

func normalizeVAT(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	code := strings.ToUpper(stripSpacing(s))
	code = strings.TrimPrefix(code, "IT")
	if code != s {
		transforms = append(transforms, TransformCodeFormat)
	}

	if len(code) != 11 || !isDigits(code) {
		return hardFail(FailMalformedVAT, "VAT number must be 11 digits")
	}

	if !vatChecksumOK(code) {
		return plausibleFail(code, FailVATChecksum, "VAT number checksum mismatch", transforms)
	}
	return Result{Value: code, Transforms: transforms}
}

// normalizeCode handles free-form identifiers such as policy numbers and
// ticket ids. Internal punctuation is meaningful and preserved.
func normalizeCode(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	code := strings.ToUpper(stripSpacing(s))
	if code != s {
		transforms = append(transforms, TransformCodeFormat)
	}
	return Result{Value: code, Transforms: transforms}
}

func stripSpacing(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
}

func isUpperAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}

// fiscalCheckChar computes the 16th character of an Italian fiscal code from
// the first fifteen, per the odd/even character tables of DM 23/12/1976.
func fiscalCheckChar(code string) byte {
	sum := 0
	for i := 0; i < len(code); i++ {
		c := code[i]
		if i%2 == 0 {
			// Positions are 1-based in the decree tables; even index is odd position.
			sum += fiscalOdd(c)
		} else {
			sum += fiscalEven(c)
		}
	}
	return byte('A' + sum%26)
}

func fiscalOdd(c byte) int {
	if c >= '0' && c <= '9' {
		return fiscalOddDigits[c-'0']
	}
	return fiscalOddLetters[c-'A']
}

func fiscalEven(c byte) int {
	if c >= '0' && c <= '9' {
		return int(c - '0')
	}
	return int(c - 'A')
}

var fiscalOddDigits = [10]int{1, 0, 5, 7, 9, 13, 15, 17, 19, 21}

var fiscalOddLetters = [26]int{
	1, 0, 5, 7, 9, 13, 15, 17, 19, 21, // A-J
	2, 4, 18, 20, 11, 3, 6, 8, 12, 14, // K-T
	16, 10, 22, 25, 24, 23, // U-Z
}

// ibanMod97 runs the ISO 13616 check: rotate the first four characters to
// the end, expand letters to two digits, and reduce modulo 97.
func ibanMod97(code string) int {
	rearranged := code[4:] + code[:4]
	n := 0
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		if c >= '0' && c <= '9' {
			n = (n*10 + int(c-'0')) % 97
		} else {
			n = (n*100 + int(c-'A') + 10) % 97
		}
	}
	return n
}

// vatChecksumOK verifies the Luhn-style check digit of an 11-digit partita
// IVA.
func vatChecksumOK(code string) bool {
	sum := 0
	for i := 0; i < 10; i++ {
		d := int(code[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return check == int(code[10]-'0')
}
