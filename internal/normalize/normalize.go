// Package normalize converts raw extracted field values into canonical form.
// Each field type has one normalizer; all of them are deterministic, and all
// of them are idempotent: feeding a canonical value back in returns the same
// value with no transforms recorded.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dverna/verita/pkg/types"
)

// Options carries locale defaults applied when the raw value omits them.
type Options struct {
	DefaultCountry  string // dialing prefix, e.g. "+39"
	DefaultCurrency string // ISO 4217 code, e.g. "EUR"
}

// Transform tags, recorded in the order they were applied. Scoring and fix
// proposals key off these.
const (
	TransformTrim             = "trim"
	TransformTextFormat       = "text_format"
	TransformPhoneFormat      = "phone_format"
	TransformDefaultCountry   = "default_country"
	TransformDateFormat       = "date_format"
	TransformItalianMonth     = "italian_month"
	TransformTwoDigitYear     = "two_digit_year"
	TransformDayFirst         = "day_first"
	TransformDayMonthSwap     = "day_month_swap"
	TransformMonthGranularity = "month_granularity"
	TransformAmountFormat     = "amount_format"
	TransformDecimalDot       = "decimal_dot"
	TransformThousandsSep     = "thousands_separator"
	TransformCodeFormat       = "code_format"
	TransformEmailFormat      = "email_format"
)

// Failure codes. Plausible failures keep a best-effort value; hard failures
// leave Result.Value empty.
const (
	FailEmpty             = "empty"
	FailUnparseableDate   = "unparseable_date"
	FailImpossibleDate    = "impossible_date"
	FailUnparseableAmount = "unparseable_amount"
	FailNotAnEmail        = "not_an_email"
	FailMissingTLD        = "missing_tld"
	FailInvalidPhone      = "invalid_phone"
	FailPhoneLength       = "phone_length"
	FailMalformedFiscal   = "malformed_fiscal_code"
	FailFiscalChecksum    = "fiscal_code_checksum"
	FailMalformedIBAN     = "malformed_iban"
	FailIBANCheckDigits   = "iban_check_digits"
	FailMalformedVAT      = "malformed_vat"
	FailVATChecksum       = "vat_checksum"
	FailMalformedCode     = "malformed_code"
)

// Failure describes why a value did not normalize cleanly.
type Failure struct {
	Code      string
	Reason    string
	Plausible bool
}

// Result is the outcome of normalizing one raw value.
type Result struct {
	Value      string
	Transforms []string
	Failure    *Failure
}

// Failed reports a hard failure: no canonical value could be produced.
func (r Result) Failed() bool {
	return r.Failure != nil && !r.Failure.Plausible
}

// Func normalizes one raw value.
type Func func(raw string, opts Options) Result

var capabilities = map[types.FieldType]Func{
	types.FieldPhone:      normalizePhone,
	types.FieldDate:       normalizeDate,
	types.FieldAmount:     normalizeAmount,
	types.FieldFiscalCode: normalizeFiscalCode,
	types.FieldIBAN:       normalizeIBAN,
	types.FieldVAT:        normalizeVAT,
	types.FieldEmail:      normalizeEmail,
	types.FieldCode:       normalizeCode,
	types.FieldText:       normalizeText,
}

// For returns the normalizer for a field type. Unknown types fall back to
// free text.
func For(ft types.FieldType) Func {
	if fn, ok := capabilities[ft]; ok {
		return fn
	}
	return normalizeText
}

// Normalize runs the capability registered for ft against raw.
func Normalize(ft types.FieldType, raw string, opts Options) Result {
	return For(ft)(raw, opts)
}

func hardFail(code, reason string) Result {
	return Result{Failure: &Failure{Code: code, Reason: reason}}
}

func plausibleFail(value, code, reason string, transforms []string) Result {
	return Result{
		Value:      value,
		Transforms: transforms,
		Failure:    &Failure{Code: code, Reason: reason, Plausible: true},
	}
}

// clean applies NFC and trims surrounding whitespace, tagging the trim when
// whitespace was removed. A pure NFC change carries no tag.
func clean(raw string) (string, []string) {
	s := norm.NFC.String(raw)
	trimmed := strings.TrimSpace(s)
	if trimmed != s {
		return trimmed, []string{TransformTrim}
	}
	return trimmed, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
