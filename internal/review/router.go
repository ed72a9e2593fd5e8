package review

import (
	"sort"

	"github.com/dverna/verita/pkg/types"
)

var severityRank = map[types.Severity]int{
	types.SeverityHigh:   0,
	types.SeverityMedium: 1,
	types.SeverityLow:    2,
}

var typeRank = map[types.IssueType]int{
	types.IssueInconsistency:        0,
	types.IssueLowConfidence:        1,
	types.IssueNormalizationFailure: 2,
}

// Route merges detected issues into one ordered list, marks which require an
// explicit decision, and assigns each a handling lane. High-severity
// findings always go to a human; a fix-backed issue below that bar is
// eligible for automatic application.
func Route(issues []types.Issue, fixes []types.AutoFix) []types.Issue {
	routed := make([]types.Issue, len(issues))
	copy(routed, issues)

	for i := range routed {
		issue := &routed[i]
		issue.DecisionRequired = decisionRequired(*issue)
		if issue.State != types.IssueDetected {
			continue
		}
		if !issue.DecisionRequired && hasFix(fixes, *issue) {
			issue.State = types.IssueAutoFixAvailable
		} else {
			issue.State = types.IssueNeedsHuman
		}
	}

	sort.SliceStable(routed, func(i, j int) bool {
		return issueLess(routed[i], routed[j])
	})
	return routed
}

// decisionRequired: every high-severity finding, plus any conflict the
// checker could not back with a single suggestion.
func decisionRequired(issue types.Issue) bool {
	if issue.Severity == types.SeverityHigh {
		return true
	}
	return issue.Type == types.IssueInconsistency && issue.Suggestion == ""
}

func hasFix(fixes []types.AutoFix, issue types.Issue) bool {
	for _, fix := range fixes {
		if fix.IssueID != "" && fix.IssueID == issue.IssueID {
			return true
		}
		if issue.RecordID != "" && fix.RecordID == issue.RecordID && fix.Field == issue.Field {
			return true
		}
	}
	return false
}

// FixFor returns the fix backing an issue, if any.
func FixFor(fixes []types.AutoFix, issue types.Issue) (types.AutoFix, bool) {
	for _, fix := range fixes {
		if fix.IssueID != "" && fix.IssueID == issue.IssueID {
			return fix, true
		}
		if issue.RecordID != "" && fix.RecordID == issue.RecordID && fix.Field == issue.Field {
			return fix, true
		}
	}
	return types.AutoFix{}, false
}

// issueLess orders severity first, then issue type, then field, then the
// record or entity the issue points at, then id. The order is total: two
// distinct issues never compare equal.
func issueLess(a, b types.Issue) bool {
	if severityRank[a.Severity] != severityRank[b.Severity] {
		return severityRank[a.Severity] < severityRank[b.Severity]
	}
	if typeRank[a.Type] != typeRank[b.Type] {
		return typeRank[a.Type] < typeRank[b.Type]
	}
	if a.Field != b.Field {
		return a.Field < b.Field
	}
	if ra, rb := refKey(a), refKey(b); ra != rb {
		return ra < rb
	}
	return a.IssueID < b.IssueID
}

func refKey(issue types.Issue) string {
	if issue.Entity != nil {
		return "entity:" + issue.Entity.Kind + ":" + issue.Entity.Value
	}
	return "record:" + string(issue.RecordType) + ":" + issue.RecordID
}

// Recommendation derives the report verdict: anything unresolved that is
// high severity or decision-required keeps the submission in review.
// Deferred counts as unresolved.
func Recommendation(issues []types.Issue) types.Recommendation {
	for _, issue := range issues {
		if issue.State == types.IssueResolved {
			continue
		}
		if issue.Severity == types.SeverityHigh || issue.DecisionRequired {
			return types.RecommendReviewRequired
		}
	}
	return types.RecommendApprove
}
