// Package api exposes the review engine over a service layer and HTTP
// handlers. The service owns the two-phase protocol: Submit runs the engine
// and persists the run; ApplyDecisions moves issues to terminal states and
// chains a superseding receipt.
package api

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dverna/verita/internal/crypto"
	"github.com/dverna/verita/internal/engine"
	"github.com/dverna/verita/internal/intake"
	"github.com/dverna/verita/internal/ledger"
	"github.com/dverna/verita/internal/notify"
	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/internal/report"
	"github.com/dverna/verita/internal/review"
	"github.com/dverna/verita/pkg/types"
)

var (
	ErrRunNotFound     = errors.New("run not found")
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrNoDecisions     = errors.New("no decisions supplied")
)

const (
	runSchema      = "verita.run.v0.1"
	decisionSchema = "verita.decision.v0.1"
)

type ReviewService struct {
	Policy    policy.LoadedPolicy
	Store     ledger.Store
	Signer    ledger.Signer
	PublicKey ed25519.PublicKey

	Workers       int
	WebhookTarget string
}

// NewDevService wires a service over an in-memory ledger with an ephemeral
// signing key, for local runs and tests.
func NewDevService(p policy.LoadedPolicy) (*ReviewService, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	priv, pub, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &ReviewService{
		Policy:    p,
		Store:     ledger.NewInMemoryStore(),
		Signer:    crypto.NewEd25519Signer("dev", priv),
		PublicKey: pub,
	}, nil
}

type SubmitResponse struct {
	RunID          string          `json:"run_id"`
	SubmissionID   string          `json:"submission_id"`
	ReportID       string          `json:"report_id"`
	ReceiptID      string          `json:"receipt_id"`
	Recommendation string          `json:"recommendation"`
	Report         json.RawMessage `json:"report,omitempty"`
}

// Submit runs the engine over one extraction bundle and persists the run.
// Resubmitting identical input under the same policy returns the stored
// run without re-running anything.
func (s *ReviewService) Submit(ctx context.Context, body []byte, now time.Time) (SubmitResponse, error) {
	sub, intakeIssues, err := intake.Parse(body)
	if err != nil {
		return SubmitResponse{}, err
	}

	if run, ok := s.Store.GetRunBySubmission(sub.SubmissionID, s.Policy.Hash); ok {
		return s.storedSubmitResponse(run)
	}

	eng := engine.New(s.Policy, s.Workers)
	result, err := eng.Run(ctx, sub, intakeIssues)
	if err != nil {
		return SubmitResponse{}, err
	}

	reportBody, err := report.CanonicalBody(result.Report)
	if err != nil {
		return SubmitResponse{}, err
	}

	runID, err := runIDFor(sub.SubmissionID, s.Policy.Hash)
	if err != nil {
		return SubmitResponse{}, err
	}

	createdAt := now.UTC().Format(time.RFC3339)
	issueRecords, err := issueRecordsFor(runID, result.Issues, createdAt)
	if err != nil {
		return SubmitResponse{}, err
	}

	counts := ledger.CountIssues(issueRecords)
	receipt, err := ledger.MakeReviewReceipt(ledger.MakeReceiptInput{
		CreatedAt:      createdAt,
		Event:          ledger.EventSubmitted,
		RunID:          runID,
		SubmissionID:   sub.SubmissionID,
		ReportID:       result.Report.ReportID,
		PolicyID:       s.Policy.Policy.PolicyID,
		PolicyVersion:  s.Policy.Policy.PolicyVersion,
		PolicyHash:     s.Policy.Hash,
		Recommendation: string(result.Report.Recommendation),
		Issues:         counts,
	}, s.Signer)
	if err != nil {
		return SubmitResponse{}, err
	}

	runRec := ledger.RunRecord{
		RunID:           runID,
		SubmissionID:    sub.SubmissionID,
		ReportID:        result.Report.ReportID,
		PolicyHash:      s.Policy.Hash,
		Recommendation:  string(result.Report.Recommendation),
		OpenIssues:      counts.Open,
		LatestReceiptID: receipt.ReceiptID,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}

	err = s.Store.WithTx(func(tx ledger.Tx) error {
		if err := tx.PutKey(ledger.KeyRecord{KeyID: s.Signer.KeyID(), PublicKey: s.PublicKey, CreatedAt: createdAt}); err != nil {
			return err
		}
		if err := tx.PutPolicyVersion(ledger.PolicyVersionRecord{
			PolicyHash:    s.Policy.Hash,
			PolicyID:      s.Policy.Policy.PolicyID,
			PolicyVersion: s.Policy.Policy.PolicyVersion,
			PolicyYAML:    string(s.Policy.Bytes),
			CreatedAt:     createdAt,
		}); err != nil {
			return err
		}
		if err := tx.PutSubmission(ledger.SubmissionRecord{
			SubmissionID: sub.SubmissionID,
			Source:       sub.Source.Kind,
			BodyJSON:     body,
			CreatedAt:    createdAt,
		}); err != nil {
			return err
		}
		if err := tx.PutReport(ledger.ReportRecord{
			ReportID:  result.Report.ReportID,
			RunID:     runID,
			BodyJSON:  reportBody,
			CreatedAt: createdAt,
		}); err != nil {
			return err
		}
		for _, rec := range issueRecords {
			if err := tx.PutIssue(rec); err != nil {
				return err
			}
		}
		if err := tx.PutReceipt(receipt); err != nil {
			return err
		}
		if err := tx.PutRun(runRec); err != nil {
			return err
		}
		if runRec.Recommendation == string(types.RecommendReviewRequired) && s.WebhookTarget != "" {
			if _, err := notify.EnqueueReviewRequired(tx, runRec, issueRecords, s.WebhookTarget, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SubmitResponse{}, err
	}

	return SubmitResponse{
		RunID:          runID,
		SubmissionID:   sub.SubmissionID,
		ReportID:       result.Report.ReportID,
		ReceiptID:      receipt.ReceiptID,
		Recommendation: runRec.Recommendation,
		Report:         json.RawMessage(reportBody),
	}, nil
}

func (s *ReviewService) storedSubmitResponse(run ledger.RunRecord) (SubmitResponse, error) {
	resp := SubmitResponse{
		RunID:          run.RunID,
		SubmissionID:   run.SubmissionID,
		ReportID:       run.ReportID,
		ReceiptID:      run.LatestReceiptID,
		Recommendation: run.Recommendation,
	}
	if rep, ok := s.Store.GetReport(run.ReportID); ok {
		resp.Report = json.RawMessage(rep.BodyJSON)
	}
	return resp, nil
}

type DecisionsResponse struct {
	RunID               string `json:"run_id"`
	ReceiptID           string `json:"receipt_id"`
	SupersedesReceiptID string `json:"supersedes_receipt_id,omitempty"`
	Recommendation      string `json:"recommendation"`
	Applied             int    `json:"applied"`
	OpenIssues          int    `json:"open_issues"`
	DecisionRequired    int    `json:"decision_required"`
}

// ApplyDecisions validates and applies a batch of review decisions. The
// batch is all-or-nothing: one bad decision fails the whole call and leaves
// the run untouched.
func (s *ReviewService) ApplyDecisions(ctx context.Context, runID string, decisions []types.ReviewDecision, now time.Time) (DecisionsResponse, error) {
	if len(decisions) == 0 {
		return DecisionsResponse{}, ErrNoDecisions
	}

	run, ok := s.Store.GetRun(runID)
	if !ok {
		return DecisionsResponse{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	stored, err := s.Store.ListIssuesByRun(runID)
	if err != nil {
		return DecisionsResponse{}, err
	}

	issues := make([]types.Issue, len(stored))
	index := make(map[string]int, len(stored))
	for i, rec := range stored {
		if err := json.Unmarshal(rec.BodyJSON, &issues[i]); err != nil {
			return DecisionsResponse{}, fmt.Errorf("decode issue %s: %w", rec.IssueID, err)
		}
		index[rec.IssueID] = i
	}

	createdAt := now.UTC().Format(time.RFC3339)
	touched := make(map[int]bool, len(decisions))
	decisionRecords := make([]ledger.DecisionRecord, 0, len(decisions))
	for _, d := range decisions {
		i, ok := index[d.IssueID]
		if !ok {
			return DecisionsResponse{}, fmt.Errorf("%w: %s", review.ErrUnknownIssue, d.IssueID)
		}
		if err := review.ApplyDecision(&issues[i], d, createdAt); err != nil {
			return DecisionsResponse{}, err
		}
		touched[i] = true

		resolvedValue := ""
		if issues[i].Resolution != nil {
			resolvedValue = issues[i].Resolution.ResolvedValue
		}
		decisionID, err := decisionIDFor(runID, d, resolvedValue, createdAt)
		if err != nil {
			return DecisionsResponse{}, err
		}
		decisionRecords = append(decisionRecords, ledger.DecisionRecord{
			DecisionID:    decisionID,
			RunID:         runID,
			IssueID:       d.IssueID,
			Resolution:    string(d.Resolution),
			ResolvedValue: resolvedValue,
			Reviewer:      d.Reviewer,
			CreatedAt:     createdAt,
		})
	}

	updated := make([]ledger.IssueRecord, len(stored))
	copy(updated, stored)
	for i := range updated {
		if !touched[i] {
			continue
		}
		body, err := json.Marshal(issues[i])
		if err != nil {
			return DecisionsResponse{}, err
		}
		updated[i].State = string(issues[i].State)
		updated[i].DecisionRequired = issues[i].DecisionRequired
		updated[i].BodyJSON = body
		updated[i].UpdatedAt = createdAt
	}

	recommendation := review.Recommendation(issues)
	counts := ledger.CountIssues(updated)

	policyID := s.Policy.Policy.PolicyID
	policyVersion := s.Policy.Policy.PolicyVersion
	if pv, ok := s.Store.GetPolicyVersion(run.PolicyHash); ok {
		policyID = pv.PolicyID
		policyVersion = pv.PolicyVersion
	}

	var supersedes *string
	if run.LatestReceiptID != "" {
		prev := run.LatestReceiptID
		supersedes = &prev
	}
	receipt, err := ledger.MakeReviewReceipt(ledger.MakeReceiptInput{
		CreatedAt:           createdAt,
		Event:               ledger.EventDecisionsApplied,
		SupersedesReceiptID: supersedes,
		RunID:               runID,
		SubmissionID:        run.SubmissionID,
		ReportID:            run.ReportID,
		PolicyID:            policyID,
		PolicyVersion:       policyVersion,
		PolicyHash:          run.PolicyHash,
		Recommendation:      string(recommendation),
		Issues:              counts,
	}, s.Signer)
	if err != nil {
		return DecisionsResponse{}, err
	}

	run.Recommendation = string(recommendation)
	run.OpenIssues = counts.Open
	run.LatestReceiptID = receipt.ReceiptID
	run.UpdatedAt = createdAt

	err = s.Store.WithTx(func(tx ledger.Tx) error {
		for i := range updated {
			if !touched[i] {
				continue
			}
			if err := tx.PutIssue(updated[i]); err != nil {
				return err
			}
		}
		for _, rec := range decisionRecords {
			if err := tx.PutDecision(rec); err != nil {
				return err
			}
		}
		if err := tx.PutReceipt(receipt); err != nil {
			return err
		}
		return tx.PutRun(run)
	})
	if err != nil {
		return DecisionsResponse{}, err
	}

	resp := DecisionsResponse{
		RunID:            runID,
		ReceiptID:        receipt.ReceiptID,
		Recommendation:   string(recommendation),
		Applied:          len(decisionRecords),
		OpenIssues:       counts.Open,
		DecisionRequired: counts.DecisionRequired,
	}
	if supersedes != nil {
		resp.SupersedesReceiptID = *supersedes
	}
	return resp, nil
}

type DecisionView struct {
	DecisionID    string `json:"decision_id"`
	IssueID       string `json:"issue_id"`
	Resolution    string `json:"resolution"`
	ResolvedValue string `json:"resolved_value,omitempty"`
	Reviewer      string `json:"reviewer,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type RunStatusResponse struct {
	RunID           string         `json:"run_id"`
	SubmissionID    string         `json:"submission_id"`
	ReportID        string         `json:"report_id"`
	PolicyHash      string         `json:"policy_hash"`
	Recommendation  string         `json:"recommendation"`
	OpenIssues      int            `json:"open_issues"`
	LatestReceiptID string         `json:"latest_receipt_id"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
	Issues          []types.Issue  `json:"issues"`
	Decisions       []DecisionView `json:"decisions"`
}

func (s *ReviewService) GetRun(runID string) (RunStatusResponse, error) {
	run, ok := s.Store.GetRun(runID)
	if !ok {
		return RunStatusResponse{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	stored, err := s.Store.ListIssuesByRun(runID)
	if err != nil {
		return RunStatusResponse{}, err
	}
	issues := make([]types.Issue, len(stored))
	for i, rec := range stored {
		if err := json.Unmarshal(rec.BodyJSON, &issues[i]); err != nil {
			return RunStatusResponse{}, fmt.Errorf("decode issue %s: %w", rec.IssueID, err)
		}
	}

	decs, err := s.Store.ListDecisionsByRun(runID)
	if err != nil {
		return RunStatusResponse{}, err
	}
	views := make([]DecisionView, 0, len(decs))
	for _, d := range decs {
		views = append(views, DecisionView{
			DecisionID:    d.DecisionID,
			IssueID:       d.IssueID,
			Resolution:    d.Resolution,
			ResolvedValue: d.ResolvedValue,
			Reviewer:      d.Reviewer,
			CreatedAt:     d.CreatedAt,
		})
	}

	return RunStatusResponse{
		RunID:           run.RunID,
		SubmissionID:    run.SubmissionID,
		ReportID:        run.ReportID,
		PolicyHash:      run.PolicyHash,
		Recommendation:  run.Recommendation,
		OpenIssues:      run.OpenIssues,
		LatestReceiptID: run.LatestReceiptID,
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
		Issues:          issues,
		Decisions:       views,
	}, nil
}

type VerifyResponse struct {
	ReceiptID string `json:"receipt_id"`
	RunID     string `json:"run_id,omitempty"`
	KeyID     string `json:"key_id,omitempty"`
	Valid     bool   `json:"valid"`
	Error     string `json:"error,omitempty"`
}

// Verify recomputes the digest of a stored receipt and checks its signature
// against the recorded public key. A failed check is a valid:false response,
// not an error; errors are reserved for missing receipts.
func (s *ReviewService) Verify(receiptID string) (VerifyResponse, error) {
	rec, ok := s.Store.GetReceipt(receiptID)
	if !ok {
		return VerifyResponse{}, fmt.Errorf("%w: %s", ErrReceiptNotFound, receiptID)
	}

	resp := VerifyResponse{ReceiptID: receiptID, RunID: rec.RunID, KeyID: rec.KeyID}

	key, ok := s.Store.GetKey(rec.KeyID)
	if !ok {
		resp.Error = "unknown signing key: " + rec.KeyID
		return resp, nil
	}

	if err := ledger.VerifyReceipt(rec, ed25519.PublicKey(key.PublicKey)); err != nil {
		resp.Error = err.Error()
		return resp, nil
	}
	resp.Valid = true
	return resp, nil
}

func runIDFor(submissionID, policyHash string) (string, error) {
	canonical, err := crypto.Canonicalize(map[string]any{
		"schema":        runSchema,
		"submission_id": submissionID,
		"policy_hash":   policyHash,
	})
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

func decisionIDFor(runID string, d types.ReviewDecision, resolvedValue, createdAt string) (string, error) {
	canonical, err := crypto.Canonicalize(map[string]any{
		"schema":         decisionSchema,
		"run_id":         runID,
		"issue_id":       d.IssueID,
		"resolution":     string(d.Resolution),
		"resolved_value": resolvedValue,
		"reviewer":       d.Reviewer,
		"created_at":     createdAt,
	})
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}

func issueRecordsFor(runID string, issues []types.Issue, createdAt string) ([]ledger.IssueRecord, error) {
	records := make([]ledger.IssueRecord, 0, len(issues))
	for i, issue := range issues {
		body, err := json.Marshal(issue)
		if err != nil {
			return nil, err
		}
		records = append(records, ledger.IssueRecord{
			IssueID:          issue.IssueID,
			RunID:            runID,
			Position:         i,
			RecordType:       string(issue.RecordType),
			RecordID:         issue.RecordID,
			Field:            issue.Field,
			IssueType:        string(issue.Type),
			Severity:         string(issue.Severity),
			State:            string(issue.State),
			DecisionRequired: issue.DecisionRequired,
			BodyJSON:         body,
			CreatedAt:        createdAt,
			UpdatedAt:        createdAt,
		})
	}
	return records, nil
}
