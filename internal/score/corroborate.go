package score

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dverna/verita/pkg/types"
)

// A fiscal code that does not corroborate the extracted surname drops to
// this confidence, putting it below every identity threshold in use.
const corroborationPenalty = 0.88

// corroborate cross-checks a customer's fiscal code against the surname on
// the same record. The first three characters of a fiscal code encode the
// surname consonants; a mismatch means one of the two fields was misread.
func corroborate(out *RecordOutcome) {
	if out.Record.RecordType != types.RecordCustomer {
		return
	}

	var fiscal *Field
	surname := ""
	for i := range out.Fields {
		f := &out.Fields[i]
		switch {
		case f.Decision.Type == types.FieldFiscalCode && f.Result.Failure == nil:
			fiscal = f
		case f.Name == "cognome" && f.Result.Failure == nil:
			surname = f.Result.Value
		}
	}
	if fiscal == nil || surname == "" {
		return
	}

	expected := surnameCode(surname)
	if expected == "" || strings.HasPrefix(fiscal.Result.Value, expected) {
		return
	}

	if fiscal.Confidence > corroborationPenalty {
		fiscal.Confidence = corroborationPenalty
	}
	fiscal.Note = "fiscal code prefix does not match extracted surname"
}

// surnameCode builds the three-letter surname block: consonants in order,
// then vowels, padded with X.
func surnameCode(surname string) string {
	s := strings.ToUpper(stripDiacritics(surname))

	var consonants, vowels []rune
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			continue
		}
		switch r {
		case 'A', 'E', 'I', 'O', 'U':
			vowels = append(vowels, r)
		default:
			consonants = append(consonants, r)
		}
	}

	letters := append(consonants, vowels...)
	if len(letters) == 0 {
		return ""
	}
	for len(letters) < 3 {
		letters = append(letters, 'X')
	}
	return string(letters[:3])
}

var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func stripDiacritics(s string) string {
	out, _, err := transform.String(diacriticsStripper, s)
	if err != nil {
		return s
	}
	return out
}
