package normalize

import (
	"reflect"
	"testing"
)

func TestNormalizeDateFormats(t *testing.T) {
	cases := []struct {
		raw        string
		value      string
		transforms []string
	}{
		{"2024-01-13", "2024-01-13", nil},
		{"2024-01", "2024-01", nil},
		{"13/01/2024", "2024-01-13", []string{TransformDateFormat}},
		{"13-01-2024", "2024-01-13", []string{TransformDateFormat}},
		{"13.01.2024", "2024-01-13", []string{TransformDateFormat}},
		{"2024/01/13", "2024-01-13", []string{TransformDateFormat}},
		{"13/01/24", "2024-01-13", []string{TransformDateFormat, TransformTwoDigitYear}},
		{"05/01/2024", "2024-01-05", []string{TransformDateFormat, TransformDayFirst}},
		{"01/13/2024", "2024-01-13", []string{TransformDateFormat, TransformDayMonthSwap}},
		{"01/2024", "2024-01", []string{TransformMonthGranularity}},
		{"01/24", "2024-01", []string{TransformMonthGranularity, TransformTwoDigitYear}},
		{"2024/01", "2024-01", []string{TransformDateFormat}},
		{"13 gennaio 2024", "2024-01-13", []string{TransformItalianMonth}},
		{"13 gen 2024", "2024-01-13", []string{TransformItalianMonth}},
		{"13 Gennaio 2024", "2024-01-13", []string{TransformItalianMonth}},
		{"gennaio 2024", "2024-01", []string{TransformItalianMonth, TransformMonthGranularity}},
		{"13 gen 24", "2024-01-13", []string{TransformItalianMonth, TransformTwoDigitYear}},
		{"29/02/2024", "2024-02-29", []string{TransformDateFormat}},
	}

	for _, tc := range cases {
		res := Normalize("date", tc.raw, Options{})
		if res.Failure != nil {
			t.Fatalf("%q: unexpected failure %+v", tc.raw, res.Failure)
		}
		if res.Value != tc.value {
			t.Fatalf("%q: got %q want %q", tc.raw, res.Value, tc.value)
		}
		if !reflect.DeepEqual(res.Transforms, tc.transforms) {
			t.Fatalf("%q: transforms %v want %v", tc.raw, res.Transforms, tc.transforms)
		}
	}
}

func TestNormalizeDateImpossible(t *testing.T) {
	for _, raw := range []string{"32/01/2024", "29/02/2023", "2024-13-01", "00/01/2024", "13/2024"} {
		res := Normalize("date", raw, Options{})
		if res.Failure == nil || !res.Failure.Plausible {
			t.Fatalf("%q: expected plausible failure, got %+v", raw, res)
		}
		if res.Failure.Code != FailImpossibleDate {
			t.Fatalf("%q: expected impossible_date, got %s", raw, res.Failure.Code)
		}
		if res.Value == "" {
			t.Fatalf("%q: plausible failure must keep a best-effort value", raw)
		}
	}
}

func TestNormalizeDateUnparseable(t *testing.T) {
	for _, raw := range []string{"", "   ", "domani", "13 frimaio 2024", "13/01/2024/05"} {
		res := Normalize("date", raw, Options{})
		if res.Failure == nil || res.Failure.Plausible {
			t.Fatalf("%q: expected hard failure, got %+v", raw, res)
		}
		if res.Value != "" {
			t.Fatalf("%q: hard failure must not keep a value", raw)
		}
	}
}

func TestNormalizeDateTwoDigitYearPivot(t *testing.T) {
	res := Normalize("date", "13/01/69", Options{})
	if res.Value != "2069-01-13" {
		t.Fatalf("expected 2069, got %q", res.Value)
	}
	res = Normalize("date", "13/01/70", Options{})
	if res.Value != "1970-01-13" {
		t.Fatalf("expected 1970, got %q", res.Value)
	}
}

func TestNormalizeDateGranularityPreserved(t *testing.T) {
	res := Normalize("date", "01/2024", Options{})
	if res.Value != "2024-01" {
		t.Fatalf("month-granularity input must stay month-granular, got %q", res.Value)
	}
}
