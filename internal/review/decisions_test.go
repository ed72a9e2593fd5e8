package review

import (
	"errors"
	"testing"

	"github.com/dverna/verita/pkg/types"
)

const testNow = "2026-08-25T10:00:00Z"

func TestApplyDecisionAccepted(t *testing.T) {
	issue := types.Issue{
		IssueID: "issue-1", Type: types.IssueInconsistency, Severity: types.SeverityHigh,
		State: types.IssueNeedsHuman, Field: "data", Suggestion: "2024-01-13",
	}

	err := ApplyDecision(&issue, types.ReviewDecision{
		IssueID:    "issue-1",
		Resolution: types.ResolutionAccepted,
		Reviewer:   "g.liverani",
	}, testNow)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if issue.State != types.IssueResolved {
		t.Fatalf("expected resolved, got %s", issue.State)
	}
	if issue.Resolution == nil || issue.Resolution.ResolvedValue != "2024-01-13" {
		t.Fatalf("accept must adopt the suggestion: %+v", issue.Resolution)
	}
	if issue.Resolution.Source != "reviewer" || issue.Resolution.Reviewer != "g.liverani" {
		t.Fatalf("unexpected provenance: %+v", issue.Resolution)
	}
	if issue.Resolution.ResolvedAt != testNow {
		t.Fatalf("unexpected resolved_at: %s", issue.Resolution.ResolvedAt)
	}
}

func TestApplyDecisionExplicitValueWins(t *testing.T) {
	issue := types.Issue{
		IssueID: "issue-1", Type: types.IssueInconsistency,
		State: types.IssueNeedsHuman, Suggestion: "2024-01-13",
	}

	err := ApplyDecision(&issue, types.ReviewDecision{
		Resolution:    types.ResolutionAccepted,
		ResolvedValue: "2024-01-15",
	}, testNow)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if issue.Resolution.ResolvedValue != "2024-01-15" {
		t.Fatalf("explicit value must win, got %s", issue.Resolution.ResolvedValue)
	}
}

func TestApplyDecisionConflictNeedsValue(t *testing.T) {
	issue := types.Issue{
		IssueID: "issue-1", Type: types.IssueInconsistency,
		State: types.IssueNeedsHuman,
	}

	err := ApplyDecision(&issue, types.ReviewDecision{Resolution: types.ResolutionAccepted}, testNow)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("expected contract error, got %v", err)
	}
	if issue.State != types.IssueNeedsHuman {
		t.Fatalf("failed decision must not move state, got %s", issue.State)
	}
}

func TestApplyDecisionDeferred(t *testing.T) {
	issue := types.Issue{IssueID: "issue-1", Type: types.IssueLowConfidence, State: types.IssueNeedsHuman}

	if err := ApplyDecision(&issue, types.ReviewDecision{Resolution: types.ResolutionDeferred}, testNow); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if issue.State != types.IssueDeferred {
		t.Fatalf("expected deferred, got %s", issue.State)
	}
}

func TestApplyDecisionTerminalRejected(t *testing.T) {
	issue := types.Issue{IssueID: "issue-1", State: types.IssueResolved}

	err := ApplyDecision(&issue, types.ReviewDecision{Resolution: types.ResolutionAccepted}, testNow)
	if !errors.Is(err, ErrIssueTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestApplyDecisionInvalidResolution(t *testing.T) {
	issue := types.Issue{IssueID: "issue-1", State: types.IssueNeedsHuman}

	err := ApplyDecision(&issue, types.ReviewDecision{Resolution: "maybe"}, testNow)
	if !errors.Is(err, ErrInvalidResolution) {
		t.Fatalf("expected invalid resolution error, got %v", err)
	}
}

func TestApplyAutoFix(t *testing.T) {
	issue := types.Issue{
		IssueID: "issue-1", Type: types.IssueLowConfidence, Severity: types.SeverityLow,
		State: types.IssueAutoFixAvailable, RecordID: "tk-1", Field: "note",
	}
	fix := types.AutoFix{RecordID: "tk-1", Field: "note", Suggested: "pulito", Confidence: 0.95}

	if err := ApplyAutoFix(&issue, fix, testNow); err != nil {
		t.Fatalf("auto apply: %v", err)
	}
	if issue.State != types.IssueResolved {
		t.Fatalf("expected resolved, got %s", issue.State)
	}
	if issue.Resolution.Source != "auto_apply" || issue.Resolution.ResolvedValue != "pulito" {
		t.Fatalf("unexpected resolution: %+v", issue.Resolution)
	}
}

func TestApplyAutoFixRejectsHumanLane(t *testing.T) {
	issue := types.Issue{
		IssueID: "issue-1", State: types.IssueNeedsHuman, DecisionRequired: true,
	}
	err := ApplyAutoFix(&issue, types.AutoFix{}, testNow)
	if !errors.Is(err, ErrContract) {
		t.Fatalf("expected contract error, got %v", err)
	}
}
