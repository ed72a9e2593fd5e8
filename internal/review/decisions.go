package review

import (
	"errors"
	"fmt"

	"github.com/dverna/verita/pkg/types"
)

var (
	// ErrUnknownIssue is returned when a decision names an issue the run
	// does not carry.
	ErrUnknownIssue = errors.New("unknown issue id")

	// ErrIssueTerminal is returned when a decision targets an issue that is
	// already resolved or deferred.
	ErrIssueTerminal = errors.New("issue already in a terminal state")

	// ErrInvalidResolution is returned for resolutions outside
	// accepted/rejected/deferred.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrContract is returned when a decision is shaped in a way the router
	// cannot honor, e.g. accepting a conflict without naming a value.
	ErrContract = errors.New("decision violates routing contract")
)

// ApplyDecision moves one issue to its terminal state. Accepting an issue
// adopts the resolved value: the decision's value if given, otherwise the
// issue's own suggestion. Accepting a conflict that has neither is a
// contract error, not a silent default.
func ApplyDecision(issue *types.Issue, decision types.ReviewDecision, now string) error {
	if issue.State == types.IssueResolved || issue.State == types.IssueDeferred {
		return fmt.Errorf("%w: %s", ErrIssueTerminal, issue.IssueID)
	}

	switch decision.Resolution {
	case types.ResolutionAccepted:
		value := decision.ResolvedValue
		if value == "" {
			value = issue.Suggestion
		}
		if value == "" && issue.Type == types.IssueInconsistency {
			return fmt.Errorf("%w: accepting %s requires a resolved value", ErrContract, issue.IssueID)
		}
		issue.State = types.IssueResolved
		issue.Resolution = &types.IssueResolution{
			Resolution:    types.ResolutionAccepted,
			ResolvedValue: value,
			Reviewer:      decision.Reviewer,
			ResolvedAt:    now,
			Source:        "reviewer",
		}
	case types.ResolutionRejected:
		issue.State = types.IssueResolved
		issue.Resolution = &types.IssueResolution{
			Resolution:    types.ResolutionRejected,
			ResolvedValue: decision.ResolvedValue,
			Reviewer:      decision.Reviewer,
			ResolvedAt:    now,
			Source:        "reviewer",
		}
	case types.ResolutionDeferred:
		issue.State = types.IssueDeferred
		issue.Resolution = &types.IssueResolution{
			Resolution: types.ResolutionDeferred,
			Reviewer:   decision.Reviewer,
			ResolvedAt: now,
			Source:     "reviewer",
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidResolution, decision.Resolution)
	}
	return nil
}

// ApplyAutoFix resolves a fix-backed issue without a reviewer. Callers gate
// this on policy: the issue must be in the auto-fix lane and the fix must
// clear the configured confidence threshold.
func ApplyAutoFix(issue *types.Issue, fix types.AutoFix, now string) error {
	if issue.State != types.IssueAutoFixAvailable {
		return fmt.Errorf("%w: %s is not auto-fix eligible", ErrContract, issue.IssueID)
	}
	if issue.DecisionRequired {
		return fmt.Errorf("%w: %s requires an explicit decision", ErrContract, issue.IssueID)
	}
	issue.State = types.IssueResolved
	issue.Resolution = &types.IssueResolution{
		Resolution:    types.ResolutionAccepted,
		ResolvedValue: fix.Suggested,
		ResolvedAt:    now,
		Source:        "auto_apply",
	}
	return nil
}
