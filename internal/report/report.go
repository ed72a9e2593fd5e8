// Package report assembles the validation report bundle and computes its
// content-addressed id. Reports carry no timestamp: the same submission
// under the same policy produces byte-identical output.
package report

import (
	"github.com/dverna/verita/internal/crypto"
	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/internal/review"
	"github.com/dverna/verita/internal/score"
	"github.com/dverna/verita/pkg/types"
)

const ReportSchema = "verita.report.v0.1"

// Input is everything the pipeline produced for one submission. Issues are
// expected routed and ordered.
type Input struct {
	Submission types.Submission
	Policy     policy.LoadedPolicy
	Outcomes   []score.RecordOutcome
	Issues     []types.Issue
	Fixes      []types.AutoFix
}

// Build assembles the report and computes report_id over its canonical
// signing view. Confidences enter the view as fixed-point strings.
func Build(in Input) (types.Report, error) {
	rep := types.Report{
		Schema:       ReportSchema,
		SubmissionID: in.Submission.SubmissionID,
		Policy: types.ReportPolicy{
			PolicyID:      in.Policy.Policy.PolicyID,
			PolicyVersion: in.Policy.Policy.PolicyVersion,
			PolicyHash:    in.Policy.Hash,
		},
		Records:        buildRecords(in.Outcomes),
		Issues:         in.Issues,
		AutoFixes:      in.Fixes,
		Recommendation: review.Recommendation(in.Issues),
	}
	rep.Summary = summarize(rep)

	canonical, err := crypto.Canonicalize(signingView(rep))
	if err != nil {
		return types.Report{}, err
	}
	rep.ReportID = crypto.DigestWithPrefix(canonical)
	return rep, nil
}

// CanonicalBody re-encodes the report's signing view. The digest of these
// bytes is the report id, so stored bodies stay digest-verifiable.
func CanonicalBody(rep types.Report) ([]byte, error) {
	return crypto.Canonicalize(signingView(rep))
}

func buildRecords(outcomes []score.RecordOutcome) []types.ReportRecord {
	var records []types.ReportRecord
	for _, out := range outcomes {
		rec := types.ReportRecord{
			RecordID:   out.Record.RecordID,
			RecordType: out.Record.RecordType,
		}
		for _, f := range out.Fields {
			rec.Fields = append(rec.Fields, types.ReportField{
				Name:       f.Name,
				Type:       f.Decision.Type,
				Raw:        f.Raw.Value,
				Normalized: f.Result.Value,
				Confidence: f.Confidence,
				Failed:     f.Result.Failed(),
			})
		}
		records = append(records, rec)
	}
	return records
}

func summarize(rep types.Report) types.ReportSummary {
	summary := types.ReportSummary{
		RecordCount:  len(rep.Records),
		IssueCount:   len(rep.Issues),
		AutoFixCount: len(rep.AutoFixes),
	}

	flagged := map[string]bool{}
	for _, issue := range rep.Issues {
		if issue.DecisionRequired {
			summary.DecisionRequired++
		}
		if issue.RecordID != "" {
			flagged[issue.RecordID] = true
		}
		for _, ref := range issue.Records {
			flagged[ref.RecordID] = true
		}
	}
	for _, rec := range rep.Records {
		if flagged[rec.RecordID] {
			summary.RecordsWithIssues++
		}
	}
	return summary
}

func signingView(rep types.Report) map[string]any {
	records := make([]any, 0, len(rep.Records))
	for _, rec := range rep.Records {
		fields := make([]any, 0, len(rec.Fields))
		for _, f := range rec.Fields {
			fields = append(fields, map[string]any{
				"name":       f.Name,
				"type":       string(f.Type),
				"raw":        f.Raw,
				"normalized": f.Normalized,
				"confidence": score.FormatConfidence(f.Confidence),
				"failed":     f.Failed,
			})
		}
		records = append(records, map[string]any{
			"record_id":   rec.RecordID,
			"record_type": string(rec.RecordType),
			"fields":      fields,
		})
	}

	issues := make([]any, 0, len(rep.Issues))
	for _, issue := range rep.Issues {
		issues = append(issues, issueView(issue))
	}

	fixes := make([]any, 0, len(rep.AutoFixes))
	for _, fix := range rep.AutoFixes {
		fixes = append(fixes, map[string]any{
			"issue_id":    fix.IssueID,
			"record_type": string(fix.RecordType),
			"record_id":   fix.RecordID,
			"field":       fix.Field,
			"original":    fix.Original,
			"suggested":   fix.Suggested,
			"transform":   fix.Transform,
			"confidence":  score.FormatConfidence(fix.Confidence),
		})
	}

	return map[string]any{
		"schema":        rep.Schema,
		"submission_id": rep.SubmissionID,
		"policy": map[string]any{
			"policy_id":      rep.Policy.PolicyID,
			"policy_version": rep.Policy.PolicyVersion,
			"policy_hash":    rep.Policy.PolicyHash,
		},
		"summary": map[string]any{
			"record_count":        rep.Summary.RecordCount,
			"records_with_issues": rep.Summary.RecordsWithIssues,
			"issue_count":         rep.Summary.IssueCount,
			"decision_required":   rep.Summary.DecisionRequired,
			"auto_fix_count":      rep.Summary.AutoFixCount,
		},
		"records":        records,
		"issues":         issues,
		"auto_fixes":     fixes,
		"recommendation": string(rep.Recommendation),
	}
}

func issueView(issue types.Issue) map[string]any {
	view := map[string]any{
		"issue_id":          issue.IssueID,
		"type":              string(issue.Type),
		"severity":          string(issue.Severity),
		"state":             string(issue.State),
		"field":             issue.Field,
		"reason":            issue.Reason,
		"decision_required": issue.DecisionRequired,
	}
	if issue.RecordID != "" {
		view["record_type"] = string(issue.RecordType)
		view["record_id"] = issue.RecordID
	}
	if issue.Confidence != nil {
		view["confidence"] = score.FormatConfidence(*issue.Confidence)
	}
	if issue.Evidence != nil {
		view["evidence"] = sourceView(*issue.Evidence)
	}
	if issue.Entity != nil {
		view["entity"] = map[string]any{"kind": issue.Entity.Kind, "value": issue.Entity.Value}
	}
	if len(issue.Records) > 0 {
		refs := make([]any, 0, len(issue.Records))
		for _, ref := range issue.Records {
			refs = append(refs, map[string]any{
				"record_type": string(ref.RecordType),
				"record_id":   ref.RecordID,
			})
		}
		view["records"] = refs
	}
	if len(issue.Variants) > 0 {
		variants := make([]any, 0, len(issue.Variants))
		for _, v := range issue.Variants {
			sources := make([]any, 0, len(v.Sources))
			for _, s := range v.Sources {
				sources = append(sources, sourceView(s))
			}
			variants = append(variants, map[string]any{
				"value":   v.Value,
				"count":   v.Count,
				"sources": sources,
			})
		}
		view["variants"] = variants
	}
	if issue.Suggestion != "" {
		view["suggestion"] = issue.Suggestion
	}
	if issue.Resolution != nil {
		view["resolution"] = map[string]any{
			"resolution":     string(issue.Resolution.Resolution),
			"resolved_value": issue.Resolution.ResolvedValue,
			"reviewer":       issue.Resolution.Reviewer,
			"resolved_at":    issue.Resolution.ResolvedAt,
			"source":         issue.Resolution.Source,
		}
	}
	return view
}

func sourceView(src types.SourceRef) map[string]any {
	return map[string]any{
		"page":    src.Page,
		"section": src.Section,
		"snippet": src.Snippet,
	}
}
