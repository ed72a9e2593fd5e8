// Package score assigns a confidence to every normalized field and raises
// issues where the confidence falls below the policy threshold for the
// field's class.
package score

import (
	"fmt"
	"strconv"

	"github.com/dverna/verita/internal/normalize"
	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/internal/review"
	"github.com/dverna/verita/pkg/types"
)

// Confidence per transform; a field's confidence is the minimum over the
// transforms its normalization applied. An untouched value scores 1.0.
var transformConfidence = map[string]float64{
	normalize.TransformTrim:             0.99,
	normalize.TransformTextFormat:       0.97,
	normalize.TransformPhoneFormat:      0.98,
	normalize.TransformDefaultCountry:   0.95,
	normalize.TransformDateFormat:       0.97,
	normalize.TransformItalianMonth:     0.97,
	normalize.TransformTwoDigitYear:     0.93,
	normalize.TransformDayFirst:         0.93,
	normalize.TransformDayMonthSwap:     0.88,
	normalize.TransformMonthGranularity: 0.90,
	normalize.TransformAmountFormat:     0.97,
	normalize.TransformDecimalDot:       0.95,
	normalize.TransformThousandsSep:     0.93,
	normalize.TransformCodeFormat:       0.98,
	normalize.TransformEmailFormat:      0.98,
}

// Pinned confidence for values that parsed but failed validation. These sit
// in a suspect band: recognizable, probably a real extraction, not trusted.
var plausibleConfidence = map[string]float64{
	normalize.FailMissingTLD:      0.92,
	normalize.FailFiscalChecksum:  0.88,
	normalize.FailVATChecksum:     0.88,
	normalize.FailIBANCheckDigits: 0.87,
	normalize.FailImpossibleDate:  0.85,
	normalize.FailPhoneLength:     0.85,
}

var reasonClauses = map[string]string{
	normalize.TransformDefaultCountry:   "default country code applied",
	normalize.TransformTwoDigitYear:     "two-digit year expanded",
	normalize.TransformDayFirst:         "day/month order assumed day-first",
	normalize.TransformDayMonthSwap:     "day and month swapped to parse",
	normalize.TransformMonthGranularity: "value carries only month precision",
	normalize.TransformThousandsSep:     "separator read as thousands mark",
	normalize.TransformDecimalDot:       "dot read as decimal separator",
}

// Confidence scores one normalization result.
func Confidence(res normalize.Result) float64 {
	if res.Failure != nil {
		if !res.Failure.Plausible {
			return 0
		}
		if c, ok := plausibleConfidence[res.Failure.Code]; ok {
			return c
		}
		return 0.85
	}
	conf := 1.0
	for _, tr := range res.Transforms {
		if c, ok := transformConfidence[tr]; ok && c < conf {
			conf = c
		}
	}
	return conf
}

// FormatConfidence renders a confidence for canonical views, where floats
// are forbidden.
func FormatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

// Field is one scored field of a record. Note carries a cross-check finding
// that overrides the transform-derived reason.
type Field struct {
	Name       string
	Decision   policy.FieldDecision
	Raw        types.RawField
	Result     normalize.Result
	Confidence float64
	Note       string
}

// RecordOutcome is the scored view of one record.
type RecordOutcome struct {
	Record types.ExtractedRecord
	Fields []Field
	Issues []types.Issue
}

// EvaluateRecord normalizes and scores every field of a record, raising
// low-confidence and failure issues. Fields keep their input order.
func EvaluateRecord(p policy.Policy, opts normalize.Options, rec types.ExtractedRecord) RecordOutcome {
	out := RecordOutcome{Record: rec}

	for _, raw := range rec.Fields {
		decision := policy.Resolve(p, rec.RecordType, raw.Name)
		res := normalize.Normalize(decision.Type, raw.Value, opts)
		field := Field{
			Name:       raw.Name,
			Decision:   decision,
			Raw:        raw,
			Result:     res,
			Confidence: Confidence(res),
		}
		out.Fields = append(out.Fields, field)
	}

	corroborate(&out)

	for i := range out.Fields {
		field := &out.Fields[i]
		if issue, ok := fieldIssue(rec, *field); ok {
			out.Issues = append(out.Issues, issue)
		}
	}

	for _, name := range missingRequired(p, rec) {
		out.Issues = append(out.Issues, missingFieldIssue(rec, name))
	}

	return out
}

func fieldIssue(rec types.ExtractedRecord, field Field) (types.Issue, bool) {
	if field.Result.Failed() {
		zero := 0.0
		issue := types.Issue{
			Type:       types.IssueNormalizationFailure,
			Severity:   types.SeverityHigh,
			State:      types.IssueDetected,
			RecordType: rec.RecordType,
			RecordID:   rec.RecordID,
			Field:      field.Name,
			Confidence: &zero,
			Reason:     field.Result.Failure.Reason,
			Evidence:   sourceOf(field.Raw),
		}
		issue.IssueID = scoreIssueID(issue)
		return issue, true
	}

	if field.Confidence >= field.Decision.Threshold {
		return types.Issue{}, false
	}

	conf := field.Confidence
	issue := types.Issue{
		Type:       types.IssueLowConfidence,
		Severity:   policy.SeverityFor(field.Decision.Class),
		State:      types.IssueDetected,
		RecordType: rec.RecordType,
		RecordID:   rec.RecordID,
		Field:      field.Name,
		Confidence: &conf,
		Reason:     lowConfidenceReason(field),
		Evidence:   sourceOf(field.Raw),
	}
	issue.IssueID = scoreIssueID(issue)
	return issue, true
}

func lowConfidenceReason(field Field) string {
	if field.Result.Failure != nil {
		return field.Result.Failure.Reason
	}
	clause := field.Note
	if clause == "" {
		lowest := 1.0
		for _, tr := range field.Result.Transforms {
			c, ok := transformConfidence[tr]
			if !ok {
				continue
			}
			if c < lowest {
				lowest = c
				if cl, ok := reasonClauses[tr]; ok {
					clause = cl
				} else {
					clause = "normalization required significant changes"
				}
			}
		}
	}
	if clause == "" {
		clause = "confidence below threshold"
	}
	return fmt.Sprintf("%s (confidence %s below threshold %s)",
		clause, FormatConfidence(field.Confidence), FormatConfidence(field.Decision.Threshold))
}

func missingRequired(p policy.Policy, rec types.ExtractedRecord) []string {
	rr, ok := policy.RecordRuleFor(p, rec.RecordType)
	if !ok {
		return nil
	}
	present := map[string]bool{}
	for _, f := range rec.Fields {
		present[f.Name] = true
	}
	var missing []string
	for _, name := range rr.Required {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func missingFieldIssue(rec types.ExtractedRecord, name string) types.Issue {
	zero := 0.0
	issue := types.Issue{
		Type:       types.IssueNormalizationFailure,
		Severity:   types.SeverityHigh,
		State:      types.IssueDetected,
		RecordType: rec.RecordType,
		RecordID:   rec.RecordID,
		Field:      name,
		Confidence: &zero,
		Reason:     fmt.Sprintf("required field %s is missing", name),
	}
	issue.IssueID = scoreIssueID(issue)
	return issue
}

func scoreIssueID(issue types.Issue) string {
	conf := ""
	if issue.Confidence != nil {
		conf = FormatConfidence(*issue.Confidence)
	}
	return review.IssueID(map[string]any{
		"type":        string(issue.Type),
		"record_type": string(issue.RecordType),
		"record_id":   issue.RecordID,
		"field":       issue.Field,
		"reason":      issue.Reason,
		"confidence":  conf,
	})
}

func sourceOf(raw types.RawField) *types.SourceRef {
	if raw.Source == (types.SourceRef{}) {
		return nil
	}
	src := raw.Source
	return &src
}
