// Package engine runs the validation pipeline: records are normalized and
// scored in parallel, then reconciled, fixed up and routed into a report.
// Everything after the parse is deterministic; worker count changes nothing
// but wall time.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dverna/verita/internal/autofix"
	"github.com/dverna/verita/internal/consistency"
	"github.com/dverna/verita/internal/logging"
	"github.com/dverna/verita/internal/normalize"
	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/internal/report"
	"github.com/dverna/verita/internal/review"
	"github.com/dverna/verita/internal/score"
	"github.com/dverna/verita/pkg/types"
)

const defaultWorkers = 4

type Engine struct {
	policy  policy.LoadedPolicy
	opts    normalize.Options
	workers int
	log     *slog.Logger
}

func New(p policy.LoadedPolicy, workers int) *Engine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Engine{
		policy: p,
		opts: normalize.Options{
			DefaultCountry:  p.Policy.Defaults.CountryCode,
			DefaultCurrency: p.Policy.Defaults.Currency,
		},
		workers: workers,
		log:     logging.New("engine"),
	}
}

// Result is one full pipeline run over a submission.
type Result struct {
	Submission types.Submission
	Report     types.Report
	Outcomes   []score.RecordOutcome
	Issues     []types.Issue
	Fixes      []types.AutoFix
}

// Run validates a submission. Intake issues from record screening join the
// pipeline's own findings. The returned report is content-addressed and
// byte-stable for identical input.
func (e *Engine) Run(ctx context.Context, sub types.Submission, intakeIssues []types.Issue) (Result, error) {
	outcomes := make([]score.RecordOutcome, len(sub.Records))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, rec := range sub.Records {
		i, rec := i, rec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = score.EvaluateRecord(e.policy.Policy, e.opts, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("score records: %w", err)
	}

	issues := make([]types.Issue, 0, len(intakeIssues))
	issues = append(issues, intakeIssues...)
	for i := range outcomes {
		issues = append(issues, outcomes[i].Issues...)
	}
	issues = append(issues, consistency.Check(e.policy.Policy, outcomes)...)

	fixes := autofix.Propose(e.opts, outcomes, issues)
	routed := review.Route(issues, fixes)

	if e.policy.Policy.AutoApply.Enabled {
		e.autoApply(routed, fixes)
	}

	rep, err := report.Build(report.Input{
		Submission: sub,
		Policy:     e.policy,
		Outcomes:   outcomes,
		Issues:     routed,
		Fixes:      fixes,
	})
	if err != nil {
		return Result{}, fmt.Errorf("build report: %w", err)
	}

	e.log.Info("run complete",
		"submission_id", sub.SubmissionID,
		"records", len(sub.Records),
		"issues", len(routed),
		"fixes", len(fixes),
		"recommendation", rep.Recommendation,
	)

	return Result{
		Submission: sub,
		Report:     rep,
		Outcomes:   outcomes,
		Issues:     routed,
		Fixes:      fixes,
	}, nil
}

// autoApply resolves fix-backed issues whose fix clears the policy
// threshold. Applied resolutions carry no timestamp: they are part of the
// run itself.
func (e *Engine) autoApply(issues []types.Issue, fixes []types.AutoFix) {
	threshold := e.policy.Policy.AutoApply.Threshold
	for i := range issues {
		issue := &issues[i]
		if issue.State != types.IssueAutoFixAvailable {
			continue
		}
		fix, ok := review.FixFor(fixes, *issue)
		if !ok || fix.Confidence < threshold {
			continue
		}
		if err := review.ApplyAutoFix(issue, fix, ""); err != nil {
			e.log.Warn("auto apply skipped", "issue_id", issue.IssueID, "error", err)
			continue
		}
		e.log.Debug("auto applied fix", "issue_id", issue.IssueID, "field", fix.Field)
	}
}
