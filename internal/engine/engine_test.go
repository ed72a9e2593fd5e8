package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/dverna/verita/internal/intake"
	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/pkg/types"
)

func fixtureSubmission(t *testing.T) types.Submission {
	t.Helper()
	tx := func(id, data string, page int) types.ExtractedRecord {
		return types.ExtractedRecord{
			RecordID:   id,
			RecordType: types.RecordTransaction,
			Fields: []types.RawField{
				{Name: "riferimento_polizza", Value: "PLZ-RCA-77821"},
				{Name: "data", Value: data, Source: types.SourceRef{Page: page}},
				{Name: "importo", Value: "1200.00 EUR"},
				{Name: "tipo", Value: "pagamento"},
			},
		}
	}
	records := []types.ExtractedRecord{
		{
			RecordID:   "cust-1",
			RecordType: types.RecordCustomer,
			Fields: []types.RawField{
				{Name: "nome", Value: "Mario"},
				{Name: "cognome", Value: "Rossi"},
				{Name: "codice_fiscale", Value: "RSSMRA85T10A562S"},
				{Name: "email", Value: "mario.rossi@gmail", Source: types.SourceRef{Page: 2}},
				{Name: "telefono", Value: "+39 333 1234567"},
			},
		},
		tx("tx-1", "13/01/24", 3),
		tx("tx-2", "13-01-2024", 5),
		tx("tx-3", "01/2024", 7),
	}
	sub, err := intake.New(types.SubmissionSource{Kind: "extraction", Document: "claim-4411.pdf"}, records)
	if err != nil {
		t.Fatalf("intake: %v", err)
	}
	return sub
}

func TestRunDeterministicAcrossWorkers(t *testing.T) {
	sub := fixtureSubmission(t)
	p := policy.Default()

	var reports [][]byte
	var reportID string
	for _, workers := range []int{1, 4, 4} {
		res, err := New(p, workers).Run(context.Background(), sub, nil)
		if err != nil {
			t.Fatalf("run with %d workers: %v", workers, err)
		}
		if reportID == "" {
			reportID = res.Report.ReportID
		} else if res.Report.ReportID != reportID {
			t.Fatalf("report id drifted with %d workers: %s vs %s", workers, res.Report.ReportID, reportID)
		}
		raw, err := json.Marshal(res.Report)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reports = append(reports, raw)
	}
	for i := 1; i < len(reports); i++ {
		if !bytes.Equal(reports[0], reports[i]) {
			t.Fatalf("report bytes differ between runs")
		}
	}
}

func TestRunFindings(t *testing.T) {
	res, err := New(policy.Default(), 2).Run(context.Background(), fixtureSubmission(t), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Report.Recommendation != types.RecommendReviewRequired {
		t.Fatalf("expected REVIEW_REQUIRED, got %s", res.Report.Recommendation)
	}
	if len(res.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(res.Outcomes))
	}
	// Suspect email plus the transaction date conflict.
	if len(res.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(res.Issues))
	}
	for _, issue := range res.Issues {
		if issue.State == types.IssueResolved {
			t.Fatalf("auto-apply is off by default, issue %s resolved", issue.IssueID)
		}
	}
}

func TestRunAutoApply(t *testing.T) {
	p := policy.Policy{
		PolicyID:      "autoapply-test",
		PolicyVersion: "2025-08-01",
		Defaults: policy.Defaults{
			CountryCode: "+39",
			Currency:    "EUR",
			Thresholds:  map[string]float64{"text": 0.98},
		},
		AutoApply: policy.AutoApply{Enabled: true, Threshold: 0.9},
	}
	lp := policy.LoadedPolicy{Policy: p, Hash: "sha256:autoapply-test"}

	sub, err := intake.New(types.SubmissionSource{Kind: "extraction", Document: "notes.pdf"}, []types.ExtractedRecord{
		{
			RecordID:   "tick-1",
			RecordType: types.RecordTicket,
			Fields: []types.RawField{
				{Name: "nota", Value: "  nota   interna "},
			},
		},
	})
	if err != nil {
		t.Fatalf("intake: %v", err)
	}

	res, err := New(lp, 1).Run(context.Background(), sub, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(res.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(res.Issues))
	}
	issue := res.Issues[0]
	if issue.State != types.IssueResolved {
		t.Fatalf("expected auto-applied resolution, state %s", issue.State)
	}
	if issue.Resolution == nil || issue.Resolution.Source != "auto_apply" {
		t.Fatalf("expected auto_apply source, got %+v", issue.Resolution)
	}
	if issue.Resolution.ResolvedValue != "nota interna" {
		t.Fatalf("expected collapsed text, got %q", issue.Resolution.ResolvedValue)
	}
	if issue.Resolution.ResolvedAt != "" {
		t.Fatalf("auto-applied fixes must not carry a timestamp, got %q", issue.Resolution.ResolvedAt)
	}
	if res.Report.Recommendation != types.RecommendApprove {
		t.Fatalf("resolved-only run must approve, got %s", res.Report.Recommendation)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(policy.Default(), 2).Run(ctx, fixtureSubmission(t), nil)
	if err == nil {
		t.Fatalf("expected error from cancelled context")
	}
}
