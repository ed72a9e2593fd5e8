package ledger

import (
	"fmt"

	"github.com/dverna/verita/internal/crypto"
)

const ReceiptSchema = "verita.receipt.v0.1"

// Receipt events. A run's first receipt records the submission; every
// decision batch supersedes the previous receipt with a decisions_applied
// one.
const (
	EventSubmitted        = "submitted"
	EventDecisionsApplied = "decisions_applied"
)

type Signer interface {
	KeyID() string
	SignEd25519(message []byte) ([]byte, error)
}

// IssueCounts summarizes a run's issue states at receipt time.
type IssueCounts struct {
	Total            int
	Open             int
	DecisionRequired int
	Resolved         int
	Deferred         int
}

type MakeReceiptInput struct {
	Schema    string
	CreatedAt string

	Event               string
	SupersedesReceiptID *string

	RunID        string
	SubmissionID string
	ReportID     string

	PolicyID      string
	PolicyVersion string
	PolicyHash    string

	Recommendation string
	Issues         IssueCounts
}

// MakeReviewReceipt canonicalizes, hashes and signs a receipt body. The
// receipt id is the body digest, so identical state signed twice yields the
// same id.
func MakeReviewReceipt(in MakeReceiptInput, signer Signer) (ReceiptRecord, error) {
	if in.Schema == "" {
		in.Schema = ReceiptSchema
	}
	if in.Schema != ReceiptSchema {
		return ReceiptRecord{}, fmt.Errorf("invalid schema: %s", in.Schema)
	}
	if in.RunID == "" || in.SubmissionID == "" || in.ReportID == "" || in.PolicyHash == "" {
		return ReceiptRecord{}, fmt.Errorf("missing required receipt fields")
	}
	if in.Event != EventSubmitted && in.Event != EventDecisionsApplied {
		return ReceiptRecord{}, fmt.Errorf("invalid receipt event: %s", in.Event)
	}

	body := map[string]any{
		"schema":                in.Schema,
		"created_at":            in.CreatedAt,
		"event":                 in.Event,
		"run_id":                in.RunID,
		"submission_id":         in.SubmissionID,
		"report_id":             in.ReportID,
		"supersedes_receipt_id": in.SupersedesReceiptID,
		"policy": map[string]any{
			"policy_id":      in.PolicyID,
			"policy_version": in.PolicyVersion,
			"policy_hash":    in.PolicyHash,
		},
		"recommendation": in.Recommendation,
		"issues": map[string]any{
			"total":             in.Issues.Total,
			"open":              in.Issues.Open,
			"decision_required": in.Issues.DecisionRequired,
			"resolved":          in.Issues.Resolved,
			"deferred":          in.Issues.Deferred,
		},
	}

	canonical, err := crypto.Canonicalize(body)
	if err != nil {
		return ReceiptRecord{}, err
	}

	digestBytes := crypto.DigestBytes(canonical)
	bodyDigest := crypto.DigestWithPrefix(canonical)

	sig, err := signer.SignEd25519(digestBytes)
	if err != nil {
		return ReceiptRecord{}, err
	}

	return ReceiptRecord{
		ReceiptID:           bodyDigest,
		RunID:               in.RunID,
		SupersedesReceiptID: in.SupersedesReceiptID,
		PolicyHash:          in.PolicyHash,
		Recommendation:      in.Recommendation,
		BodyJSON:            canonical,
		BodyDigest:          bodyDigest,
		KeyID:               signer.KeyID(),
		Sig:                 sig,
		CreatedAt:           in.CreatedAt,
	}, nil
}

// CountIssues tallies issue states for a receipt body.
func CountIssues(issues []IssueRecord) IssueCounts {
	counts := IssueCounts{Total: len(issues)}
	for _, issue := range issues {
		switch issue.State {
		case "resolved":
			counts.Resolved++
		case "deferred":
			counts.Deferred++
		default:
			counts.Open++
		}
		if issue.DecisionRequired && issue.State != "resolved" {
			counts.DecisionRequired++
		}
	}
	return counts
}
