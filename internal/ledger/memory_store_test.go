package ledger

import (
	"errors"
	"testing"
)

func TestInMemoryStore_CRUD(t *testing.T) {
	s := NewInMemoryStore()

	key := KeyRecord{KeyID: "kid", PublicKey: []byte("pub"), CreatedAt: "now"}
	if err := s.PutKey(key); err != nil {
		t.Fatalf("put key: %v", err)
	}
	if got, ok := s.GetKey("kid"); !ok || got.KeyID != "kid" {
		t.Fatalf("get key mismatch: ok=%v got=%+v", ok, got)
	}

	policy := PolicyVersionRecord{PolicyHash: "ph", PolicyID: "pid", PolicyVersion: "1", PolicyYAML: "y", CreatedAt: "now"}
	if err := s.PutPolicyVersion(policy); err != nil {
		t.Fatalf("put policy: %v", err)
	}
	if got, ok := s.GetPolicyVersion("ph"); !ok || got.PolicyID != "pid" {
		t.Fatalf("get policy mismatch: ok=%v got=%+v", ok, got)
	}

	sub := SubmissionRecord{SubmissionID: "s1", Source: "api", BodyJSON: []byte(`{}`), CreatedAt: "now"}
	if err := s.PutSubmission(sub); err != nil {
		t.Fatalf("put submission: %v", err)
	}
	if got, ok := s.GetSubmission("s1"); !ok || string(got.BodyJSON) != "{}" {
		t.Fatalf("get submission mismatch: ok=%v got=%+v", ok, got)
	}

	run := RunRecord{RunID: "r1", SubmissionID: "s1", ReportID: "rep1", PolicyHash: "ph", Recommendation: "APPROVE", CreatedAt: "now", UpdatedAt: "now"}
	if err := s.PutRun(run); err != nil {
		t.Fatalf("put run: %v", err)
	}
	if got, ok := s.GetRun("r1"); !ok || got.SubmissionID != "s1" {
		t.Fatalf("get run mismatch: ok=%v got=%+v", ok, got)
	}
	if got, ok := s.GetRunBySubmission("s1", "ph"); !ok || got.RunID != "r1" {
		t.Fatalf("get run by submission mismatch: ok=%v got=%+v", ok, got)
	}
	if _, ok := s.GetRunBySubmission("s1", "other-hash"); ok {
		t.Fatalf("run lookup should miss on a different policy hash")
	}

	rep := ReportRecord{ReportID: "rep1", RunID: "r1", BodyJSON: []byte(`{}`), CreatedAt: "now"}
	if err := s.PutReport(rep); err != nil {
		t.Fatalf("put report: %v", err)
	}
	if got, ok := s.GetReport("rep1"); !ok || got.RunID != "r1" {
		t.Fatalf("get report mismatch: ok=%v got=%+v", ok, got)
	}

	// Inserted out of order; the listing must come back by position.
	for _, issue := range []IssueRecord{
		{IssueID: "i2", RunID: "r1", Position: 1, Field: "data", IssueType: "format_violation", Severity: "low", State: "detected", BodyJSON: []byte(`{}`), CreatedAt: "now", UpdatedAt: "now"},
		{IssueID: "i1", RunID: "r1", Position: 0, Field: "importo", IssueType: "low_confidence", Severity: "high", State: "detected", DecisionRequired: true, BodyJSON: []byte(`{}`), CreatedAt: "now", UpdatedAt: "now"},
	} {
		if err := s.PutIssue(issue); err != nil {
			t.Fatalf("put issue: %v", err)
		}
	}
	if got, ok := s.GetIssue("i1"); !ok || !got.DecisionRequired {
		t.Fatalf("get issue mismatch: ok=%v got=%+v", ok, got)
	}
	issues, err := s.ListIssuesByRun("r1")
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(issues) != 2 || issues[0].IssueID != "i1" || issues[1].IssueID != "i2" {
		t.Fatalf("issues out of position order: %+v", issues)
	}

	for _, dec := range []DecisionRecord{
		{DecisionID: "d2", RunID: "r1", IssueID: "i2", Resolution: "defer", Reviewer: "ana", CreatedAt: "2025-08-20T11:00:00Z"},
		{DecisionID: "d1", RunID: "r1", IssueID: "i1", Resolution: "accept_suggested", Reviewer: "ana", CreatedAt: "2025-08-20T10:00:00Z"},
	} {
		if err := s.PutDecision(dec); err != nil {
			t.Fatalf("put decision: %v", err)
		}
	}
	if got, ok := s.GetDecision("d1"); !ok || got.IssueID != "i1" {
		t.Fatalf("get decision mismatch: ok=%v got=%+v", ok, got)
	}
	decs, err := s.ListDecisionsByRun("r1")
	if err != nil {
		t.Fatalf("list decisions: %v", err)
	}
	if len(decs) != 2 || decs[0].DecisionID != "d1" || decs[1].DecisionID != "d2" {
		t.Fatalf("decisions out of time order: %+v", decs)
	}

	rec := ReceiptRecord{ReceiptID: "rc1", RunID: "r1", PolicyHash: "ph", Recommendation: "APPROVE", BodyJSON: []byte(`{}`), BodyDigest: "rc1", KeyID: "kid", Sig: []byte("sig"), CreatedAt: "now"}
	if err := s.PutReceipt(rec); err != nil {
		t.Fatalf("put receipt: %v", err)
	}
	if got, ok := s.GetReceipt("rc1"); !ok || got.KeyID != "kid" {
		t.Fatalf("get receipt mismatch: ok=%v got=%+v", ok, got)
	}

	outbox := OutboxRecord{
		NotificationID: "n1",
		RunID:          "r1",
		Target:         "https://hooks.example.com/verita",
		PayloadJSON:    []byte(`{"run_id":"r1"}`),
		Status:         "pending",
		AttemptCount:   0,
		NextAttemptAt:  "now",
		CreatedAt:      "now",
		UpdatedAt:      "now",
	}
	if err := s.PutOutbox(outbox); err != nil {
		t.Fatalf("put outbox: %v", err)
	}
	if got, ok := s.GetOutbox("n1"); !ok || got.RunID != "r1" {
		t.Fatalf("get outbox mismatch: ok=%v got=%+v", ok, got)
	}
	if due, err := s.ListOutboxDue("now", 10); err != nil || len(due) != 1 {
		t.Fatalf("list due mismatch: err=%v len=%d", err, len(due))
	}
}

func TestInMemoryStore_OutboxDueOrder(t *testing.T) {
	s := NewInMemoryStore()

	for _, rec := range []OutboxRecord{
		{NotificationID: "n-late", RunID: "r1", Target: "t", PayloadJSON: []byte(`{}`), Status: "pending", NextAttemptAt: "2025-08-20T12:00:00Z", CreatedAt: "now", UpdatedAt: "now"},
		{NotificationID: "n-early", RunID: "r1", Target: "t", PayloadJSON: []byte(`{}`), Status: "pending", NextAttemptAt: "2025-08-20T10:00:00Z", CreatedAt: "now", UpdatedAt: "now"},
		{NotificationID: "n-sent", RunID: "r1", Target: "t", PayloadJSON: []byte(`{}`), Status: "sent", NextAttemptAt: "2025-08-20T10:00:00Z", CreatedAt: "now", UpdatedAt: "now"},
		{NotificationID: "n-future", RunID: "r1", Target: "t", PayloadJSON: []byte(`{}`), Status: "pending", NextAttemptAt: "2025-08-21T00:00:00Z", CreatedAt: "now", UpdatedAt: "now"},
	} {
		if err := s.PutOutbox(rec); err != nil {
			t.Fatalf("put outbox: %v", err)
		}
	}

	due, err := s.ListOutboxDue("2025-08-20T13:00:00Z", 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 || due[0].NotificationID != "n-early" || due[1].NotificationID != "n-late" {
		t.Fatalf("due order mismatch: %+v", due)
	}

	due, err = s.ListOutboxDue("2025-08-20T13:00:00Z", 1)
	if err != nil || len(due) != 1 || due[0].NotificationID != "n-early" {
		t.Fatalf("limit mismatch: err=%v %+v", err, due)
	}
}

func TestInMemoryStore_WithTx(t *testing.T) {
	s := NewInMemoryStore()
	err := s.WithTx(func(tx Tx) error {
		if err := tx.PutKey(KeyRecord{KeyID: "tx-k", PublicKey: []byte("pub"), CreatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetKey("tx-k"); !ok {
			t.Fatalf("expected key in tx")
		}
		if err := tx.PutPolicyVersion(PolicyVersionRecord{PolicyHash: "tx-ph", PolicyID: "pid", PolicyVersion: "1", PolicyYAML: "y", CreatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetPolicyVersion("tx-ph"); !ok {
			t.Fatalf("expected policy in tx")
		}
		if err := tx.PutSubmission(SubmissionRecord{SubmissionID: "tx-s", Source: "cli", BodyJSON: []byte(`{}`), CreatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetSubmission("tx-s"); !ok {
			t.Fatalf("expected submission in tx")
		}
		if err := tx.PutRun(RunRecord{RunID: "tx-r", SubmissionID: "tx-s", ReportID: "tx-rep", PolicyHash: "tx-ph", Recommendation: "APPROVE", CreatedAt: "now", UpdatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetRun("tx-r"); !ok {
			t.Fatalf("expected run in tx")
		}
		if _, ok := tx.GetRunBySubmission("tx-s", "tx-ph"); !ok {
			t.Fatalf("expected run by submission in tx")
		}
		if err := tx.PutReport(ReportRecord{ReportID: "tx-rep", RunID: "tx-r", BodyJSON: []byte(`{}`), CreatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetReport("tx-rep"); !ok {
			t.Fatalf("expected report in tx")
		}
		if err := tx.PutIssue(IssueRecord{IssueID: "tx-i", RunID: "tx-r", Field: "f", IssueType: "low_confidence", Severity: "low", State: "detected", BodyJSON: []byte(`{}`), CreatedAt: "now", UpdatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetIssue("tx-i"); !ok {
			t.Fatalf("expected issue in tx")
		}
		if issues, err := tx.ListIssuesByRun("tx-r"); err != nil || len(issues) != 1 {
			t.Fatalf("expected issue listing in tx: err=%v len=%d", err, len(issues))
		}
		if err := tx.PutDecision(DecisionRecord{DecisionID: "tx-d", RunID: "tx-r", IssueID: "tx-i", Resolution: "defer", Reviewer: "ana", CreatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetDecision("tx-d"); !ok {
			t.Fatalf("expected decision in tx")
		}
		if decs, err := tx.ListDecisionsByRun("tx-r"); err != nil || len(decs) != 1 {
			t.Fatalf("expected decision listing in tx: err=%v len=%d", err, len(decs))
		}
		if err := tx.PutReceipt(ReceiptRecord{ReceiptID: "tx-rc", RunID: "tx-r", BodyJSON: []byte(`{}`), BodyDigest: "tx-rc", KeyID: "tx-k", CreatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetReceipt("tx-rc"); !ok {
			t.Fatalf("expected receipt in tx")
		}
		if err := tx.PutOutbox(OutboxRecord{NotificationID: "tx-n", RunID: "tx-r", Target: "t", PayloadJSON: []byte(`{}`), Status: "pending", NextAttemptAt: "now", CreatedAt: "now", UpdatedAt: "now"}); err != nil {
			return err
		}
		if _, ok := tx.GetOutbox("tx-n"); !ok {
			t.Fatalf("expected outbox in tx")
		}
		if due, err := tx.ListOutboxDue("now", 10); err != nil || len(due) != 1 {
			t.Fatalf("expected outbox due in tx: err=%v len=%d", err, len(due))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withtx: %v", err)
	}
	if _, ok := s.GetRun("tx-r"); !ok {
		t.Fatalf("expected run")
	}

	err = s.WithTx(func(tx Tx) error {
		_ = tx.PutSubmission(SubmissionRecord{SubmissionID: "rollback", BodyJSON: []byte(`{}`), CreatedAt: "now"})
		return errors.New("boom")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	// In-memory "tx" is just a lock; it doesn't rollback.
	if _, ok := s.GetSubmission("rollback"); !ok {
		t.Fatalf("expected in-memory tx to keep writes")
	}
}
