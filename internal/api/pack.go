package api

import (
	"fmt"

	"github.com/dverna/verita/internal/pack"
)

// BuildPack collects a run's stored artifacts into the zip evidence pack.
func (s *ReviewService) BuildPack(runID string, baseURL string) ([]byte, error) {
	run, ok := s.Store.GetRun(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rep, ok := s.Store.GetReport(run.ReportID)
	if !ok {
		return nil, fmt.Errorf("report %s missing for run %s", run.ReportID, runID)
	}

	receipt, ok := s.Store.GetReceipt(run.LatestReceiptID)
	if !ok {
		return nil, fmt.Errorf("receipt %s missing for run %s", run.LatestReceiptID, runID)
	}

	pv, ok := s.Store.GetPolicyVersion(run.PolicyHash)
	if !ok {
		return nil, fmt.Errorf("policy %s missing for run %s", run.PolicyHash, runID)
	}

	decs, err := s.Store.ListDecisionsByRun(runID)
	if err != nil {
		return nil, err
	}
	views := make([]pack.DecisionView, 0, len(decs))
	for _, d := range decs {
		views = append(views, pack.DecisionView{
			DecisionID:    d.DecisionID,
			IssueID:       d.IssueID,
			Resolution:    d.Resolution,
			ResolvedValue: d.ResolvedValue,
			Reviewer:      d.Reviewer,
			CreatedAt:     d.CreatedAt,
		})
	}

	in := pack.Input{
		RunID:     runID,
		Report:    rep.BodyJSON,
		Receipt:   receipt,
		Decisions: views,
		Policy:    []byte(pv.PolicyYAML),
	}
	if sub, ok := s.Store.GetSubmission(run.SubmissionID); ok {
		in.Submission = sub.BodyJSON
	}

	return pack.BuildZip(in, baseURL)
}
