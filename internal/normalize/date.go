package normalize

import (
	"fmt"
	"strconv"
	"strings"
)

// Canonical date forms: "2006-01-02" for full dates, "2006-01" when the raw
// value only carries month precision. Granularity is preserved, never
// invented.

var italianMonths = map[string]int{
	"gennaio": 1, "gen": 1,
	"febbraio": 2, "feb": 2,
	"marzo": 3, "mar": 3,
	"aprile": 4, "apr": 4,
	"maggio": 5, "mag": 5,
	"giugno": 6, "giu": 6,
	"luglio": 7, "lug": 7,
	"agosto": 8, "ago": 8,
	"settembre": 9, "set": 9,
	"ottobre": 10, "ott": 10,
	"novembre": 11, "nov": 11,
	"dicembre": 12, "dic": 12,
}

func normalizeDate(raw string, opts Options) Result {
	s, transforms := clean(raw)
	if s == "" {
		return hardFail(FailEmpty, "value is empty")
	}

	// Canonical fast paths.
	if y, m, d, ok := splitISODate(s); ok {
		if reason := checkDay(y, m, d); reason != "" {
			return plausibleFail(s, FailImpossibleDate, reason, transforms)
		}
		return Result{Value: s, Transforms: transforms}
	}
	if y, m, ok := splitISOMonth(s); ok {
		if reason := checkMonth(y, m); reason != "" {
			return plausibleFail(s, FailImpossibleDate, reason, transforms)
		}
		return Result{Value: s, Transforms: transforms}
	}

	if res, ok := parseTextualDate(s, transforms); ok {
		return res
	}

	parts := splitDateParts(s)
	switch len(parts) {
	case 3:
		return parseNumericDate(s, parts, transforms)
	case 2:
		return parseNumericMonth(s, parts, transforms)
	}

	return hardFail(FailUnparseableDate, fmt.Sprintf("unrecognized date format: %q", s))
}

// parseNumericDate handles three-part numeric dates in day-first order, with
// explicit tags for every assumption made along the way.
func parseNumericDate(s string, parts []string, transforms []string) Result {
	a, errA := strconv.Atoi(parts[0])
	b, errB := strconv.Atoi(parts[1])
	c, errC := strconv.Atoi(parts[2])
	if errA != nil || errB != nil || errC != nil {
		return hardFail(FailUnparseableDate, fmt.Sprintf("unrecognized date format: %q", s))
	}

	var year, month, day int
	switch {
	case len(parts[0]) == 4:
		// yyyy/mm/dd written with non-canonical separators.
		year, month, day = a, b, c
		transforms = append(transforms, TransformDateFormat)
	case len(parts[2]) == 4:
		year = c
		day, month = a, b
		transforms = append(transforms, TransformDateFormat)
		switch {
		case a > 12 && b > 12:
			return plausibleFail(s, FailImpossibleDate, "no valid month position", transforms)
		case b > 12:
			// Month slot exceeds 12: the value must be month-first.
			day, month = b, a
			transforms = append(transforms, TransformDayMonthSwap)
		case a <= 12:
			// Both parts could be the month; day-first is assumed.
			transforms = append(transforms, TransformDayFirst)
		}
	case len(parts[2]) == 2:
		year = pivotYear(c)
		day, month = a, b
		transforms = append(transforms, TransformDateFormat, TransformTwoDigitYear)
		switch {
		case a > 12 && b > 12:
			return plausibleFail(s, FailImpossibleDate, "no valid month position", transforms)
		case b > 12:
			day, month = b, a
			transforms = append(transforms, TransformDayMonthSwap)
		case a <= 12:
			transforms = append(transforms, TransformDayFirst)
		}
	default:
		return hardFail(FailUnparseableDate, fmt.Sprintf("unrecognized date format: %q", s))
	}

	if reason := checkDay(year, month, day); reason != "" {
		return plausibleFail(s, FailImpossibleDate, reason, transforms)
	}
	return Result{Value: fmt.Sprintf("%04d-%02d-%02d", year, month, day), Transforms: transforms}
}

func parseNumericMonth(s string, parts []string, transforms []string) Result {
	a, errA := strconv.Atoi(parts[0])
	b, errB := strconv.Atoi(parts[1])
	if errA != nil || errB != nil {
		return hardFail(FailUnparseableDate, fmt.Sprintf("unrecognized date format: %q", s))
	}

	var year, month int
	switch {
	case len(parts[0]) == 4:
		// yyyy/mm with non-canonical separators.
		year, month = a, b
		transforms = append(transforms, TransformDateFormat)
	case len(parts[1]) == 4:
		// mm/yyyy, the common Italian statement form.
		year, month = b, a
		transforms = append(transforms, TransformMonthGranularity)
	case len(parts[1]) == 2:
		year, month = pivotYear(b), a
		transforms = append(transforms, TransformMonthGranularity, TransformTwoDigitYear)
	default:
		return hardFail(FailUnparseableDate, fmt.Sprintf("unrecognized date format: %q", s))
	}

	if reason := checkMonth(year, month); reason != "" {
		return plausibleFail(s, FailImpossibleDate, reason, transforms)
	}
	return Result{Value: fmt.Sprintf("%04d-%02d", year, month), Transforms: transforms}
}

// parseTextualDate handles "13 gennaio 2024", "13 gen 24" and the
// month-granularity "gennaio 2024".
func parseTextualDate(s string, transforms []string) (Result, bool) {
	fields := strings.Fields(strings.ToLower(s))

	switch len(fields) {
	case 3:
		day, errD := strconv.Atoi(fields[0])
		month, okM := italianMonths[fields[1]]
		if errD != nil || !okM {
			return Result{}, false
		}
		year, errY := strconv.Atoi(fields[2])
		if errY != nil {
			return Result{}, false
		}
		transforms = append(transforms, TransformItalianMonth)
		if len(fields[2]) == 2 {
			year = pivotYear(year)
			transforms = append(transforms, TransformTwoDigitYear)
		}
		if reason := checkDay(year, month, day); reason != "" {
			return plausibleFail(s, FailImpossibleDate, reason, transforms), true
		}
		return Result{Value: fmt.Sprintf("%04d-%02d-%02d", year, month, day), Transforms: transforms}, true
	case 2:
		month, okM := italianMonths[fields[0]]
		if !okM {
			return Result{}, false
		}
		year, errY := strconv.Atoi(fields[1])
		if errY != nil {
			return Result{}, false
		}
		transforms = append(transforms, TransformItalianMonth, TransformMonthGranularity)
		if len(fields[1]) == 2 {
			year = pivotYear(year)
			transforms = append(transforms, TransformTwoDigitYear)
		}
		if reason := checkMonth(year, month); reason != "" {
			return plausibleFail(s, FailImpossibleDate, reason, transforms), true
		}
		return Result{Value: fmt.Sprintf("%04d-%02d", year, month), Transforms: transforms}, true
	}
	return Result{}, false
}

func splitDateParts(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
}

func splitISODate(s string) (year, month, day int, ok bool) {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return 0, 0, 0, false
	}
	y, m, d := s[:4], s[5:7], s[8:]
	if !isDigits(y) || !isDigits(m) || !isDigits(d) {
		return 0, 0, 0, false
	}
	year, _ = strconv.Atoi(y)
	month, _ = strconv.Atoi(m)
	day, _ = strconv.Atoi(d)
	return year, month, day, true
}

func splitISOMonth(s string) (year, month int, ok bool) {
	if len(s) != 7 || s[4] != '-' {
		return 0, 0, false
	}
	y, m := s[:4], s[5:]
	if !isDigits(y) || !isDigits(m) {
		return 0, 0, false
	}
	year, _ = strconv.Atoi(y)
	month, _ = strconv.Atoi(m)
	return year, month, true
}

// pivotYear expands a two-digit year; 70 splits the centuries.
func pivotYear(yy int) int {
	if yy < 70 {
		return 2000 + yy
	}
	return 1900 + yy
}

func checkMonth(year, month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("month %d is out of range", month)
	}
	if year < 1900 || year > 2099 {
		return fmt.Sprintf("year %d is out of range", year)
	}
	return ""
}

func checkDay(year, month, day int) string {
	if reason := checkMonth(year, month); reason != "" {
		return reason
	}
	if day < 1 || day > daysInMonth(year, month) {
		return fmt.Sprintf("day %d is out of range", day)
	}
	return ""
}

func daysInMonth(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	}
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 29
	}
	return 28
}
