// Package autofix proposes formatting-only corrections: deterministic
// rewrites of a raw value into its canonical form. Proposals never invent
// data and never touch fields that failed normalization.
package autofix

import (
	"github.com/dverna/verita/internal/normalize"
	"github.com/dverna/verita/internal/score"
	"github.com/dverna/verita/pkg/types"
)

// Fix confidence per transform: how safe it is to apply the rewrite without
// a human looking at it. Assumption-heavy transforms sit near the floor.
var fixConfidence = map[string]float64{
	normalize.TransformTrim:             0.95,
	normalize.TransformTextFormat:       0.95,
	normalize.TransformPhoneFormat:      0.90,
	normalize.TransformDefaultCountry:   0.90,
	normalize.TransformDateFormat:       0.90,
	normalize.TransformItalianMonth:     0.90,
	normalize.TransformTwoDigitYear:     0.85,
	normalize.TransformDayFirst:         0.85,
	normalize.TransformDayMonthSwap:     0.80,
	normalize.TransformMonthGranularity: 0.85,
	normalize.TransformAmountFormat:     0.90,
	normalize.TransformDecimalDot:       0.85,
	normalize.TransformThousandsSep:     0.85,
	normalize.TransformCodeFormat:       0.90,
	normalize.TransformEmailFormat:      0.90,
}

// Propose walks scored records and emits one fix per field whose canonical
// form differs from the raw value. Every proposal is round-trip verified:
// normalizing the suggestion must reproduce the field's canonical value.
func Propose(opts normalize.Options, records []score.RecordOutcome, issues []types.Issue) []types.AutoFix {
	var fixes []types.AutoFix
	for i := range records {
		rec := &records[i]
		for j := range rec.Fields {
			if fix, ok := proposeField(opts, rec, &rec.Fields[j], issues); ok {
				fixes = append(fixes, fix)
			}
		}
	}
	return fixes
}

func proposeField(opts normalize.Options, rec *score.RecordOutcome, field *score.Field, issues []types.Issue) (types.AutoFix, bool) {
	if field.Result.Failure != nil || field.Result.Value == field.Raw.Value {
		return types.AutoFix{}, false
	}

	transform, confidence := summarize(field.Result.Transforms)

	verify := normalize.Normalize(field.Decision.Type, field.Result.Value, opts)
	if verify.Failure != nil || verify.Value != field.Result.Value {
		return types.AutoFix{}, false
	}

	fix := types.AutoFix{
		RecordType: rec.Record.RecordType,
		RecordID:   rec.Record.RecordID,
		Field:      field.Name,
		Original:   field.Raw.Value,
		Suggested:  field.Result.Value,
		Transform:  transform,
		Confidence: confidence,
	}
	if issue := matchingIssue(issues, rec.Record.RecordID, field.Name); issue != nil {
		fix.IssueID = issue.IssueID
	}
	return fix, true
}

// summarize picks the dominant transform label and the overall fix
// confidence (minimum across applied transforms). A value that changed with
// no recorded transform was only Unicode-composed.
func summarize(transforms []string) (string, float64) {
	if len(transforms) == 0 {
		return "unicode_nfc", 0.95
	}
	label := transforms[0]
	confidence := 1.0
	for _, tr := range transforms {
		c, ok := fixConfidence[tr]
		if !ok {
			continue
		}
		if c < confidence {
			confidence = c
			label = tr
		}
	}
	return label, confidence
}

func matchingIssue(issues []types.Issue, recordID, field string) *types.Issue {
	for i := range issues {
		issue := &issues[i]
		if issue.RecordID == recordID && issue.Field == field {
			return issue
		}
	}
	return nil
}
