// Package pgstore is the Postgres ledger backend. Canonical JSON bodies are
// stored in json (not jsonb) columns so they read back byte-identical;
// receipt verification depends on that.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/lib/pq"

	"github.com/dverna/verita/internal/ledger"
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutKey(key ledger.KeyRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutKey(key) })
}

func (s *Store) GetKey(keyID string) (ledger.KeyRecord, bool) {
	var rec ledger.KeyRecord
	row := s.db.QueryRow(`SELECT key_id, public_key, created_at::text, rotated_at::text FROM verita_keys WHERE key_id = $1`, keyID)
	var rotated *string
	if err := row.Scan(&rec.KeyID, &rec.PublicKey, &rec.CreatedAt, &rotated); err != nil {
		return ledger.KeyRecord{}, false
	}
	rec.RotatedAt = rotated
	return rec, true
}

func (s *Store) PutPolicyVersion(policy ledger.PolicyVersionRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutPolicyVersion(policy) })
}

func (s *Store) GetPolicyVersion(policyHash string) (ledger.PolicyVersionRecord, bool) {
	var rec ledger.PolicyVersionRecord
	row := s.db.QueryRow(`SELECT policy_hash, policy_id, policy_version, policy_yaml, created_at::text FROM verita_policy_versions WHERE policy_hash = $1`, policyHash)
	if err := row.Scan(&rec.PolicyHash, &rec.PolicyID, &rec.PolicyVersion, &rec.PolicyYAML, &rec.CreatedAt); err != nil {
		return ledger.PolicyVersionRecord{}, false
	}
	return rec, true
}

func (s *Store) PutSubmission(sub ledger.SubmissionRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutSubmission(sub) })
}

func (s *Store) GetSubmission(submissionID string) (ledger.SubmissionRecord, bool) {
	var rec ledger.SubmissionRecord
	var body string
	row := s.db.QueryRow(`SELECT submission_id, source, body_json::text, created_at::text FROM verita_submissions WHERE submission_id = $1`, submissionID)
	if err := row.Scan(&rec.SubmissionID, &rec.Source, &body, &rec.CreatedAt); err != nil {
		return ledger.SubmissionRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func (s *Store) PutRun(run ledger.RunRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutRun(run) })
}

func (s *Store) GetRun(runID string) (ledger.RunRecord, bool) {
	return scanRun(s.db.QueryRow(runSelect+` WHERE run_id = $1`, runID))
}

func (s *Store) GetRunBySubmission(submissionID, policyHash string) (ledger.RunRecord, bool) {
	return scanRun(s.db.QueryRow(runSelect+` WHERE submission_id = $1 AND policy_hash = $2`, submissionID, policyHash))
}

func (s *Store) PutReport(report ledger.ReportRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutReport(report) })
}

func (s *Store) GetReport(reportID string) (ledger.ReportRecord, bool) {
	var rec ledger.ReportRecord
	var body string
	row := s.db.QueryRow(`SELECT report_id, run_id, body_json::text, created_at::text FROM verita_reports WHERE report_id = $1`, reportID)
	if err := row.Scan(&rec.ReportID, &rec.RunID, &body, &rec.CreatedAt); err != nil {
		return ledger.ReportRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func (s *Store) PutIssue(issue ledger.IssueRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutIssue(issue) })
}

func (s *Store) GetIssue(issueID string) (ledger.IssueRecord, bool) {
	return scanIssue(s.db.QueryRow(issueSelect+` WHERE issue_id = $1`, issueID))
}

func (s *Store) ListIssuesByRun(runID string) ([]ledger.IssueRecord, error) {
	rows, err := s.db.Query(issueSelect+` WHERE run_id = $1 ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectIssues(rows)
}

func (s *Store) PutDecision(decision ledger.DecisionRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutDecision(decision) })
}

func (s *Store) GetDecision(decisionID string) (ledger.DecisionRecord, bool) {
	var rec ledger.DecisionRecord
	row := s.db.QueryRow(decisionSelect+` WHERE decision_id = $1`, decisionID)
	if err := row.Scan(&rec.DecisionID, &rec.RunID, &rec.IssueID, &rec.Resolution, &rec.ResolvedValue, &rec.Reviewer, &rec.CreatedAt); err != nil {
		return ledger.DecisionRecord{}, false
	}
	return rec, true
}

func (s *Store) ListDecisionsByRun(runID string) ([]ledger.DecisionRecord, error) {
	rows, err := s.db.Query(decisionSelect+` WHERE run_id = $1 ORDER BY created_at ASC, decision_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectDecisions(rows)
}

func (s *Store) PutReceipt(receipt ledger.ReceiptRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutReceipt(receipt) })
}

func (s *Store) GetReceipt(receiptID string) (ledger.ReceiptRecord, bool) {
	return scanReceipt(s.db.QueryRow(receiptSelect+` WHERE receipt_id = $1`, receiptID))
}

func (s *Store) PutOutbox(rec ledger.OutboxRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutOutbox(rec) })
}

func (s *Store) GetOutbox(notificationID string) (ledger.OutboxRecord, bool) {
	return scanOutbox(s.db.QueryRow(outboxSelect+` WHERE notification_id = $1`, notificationID))
}

func (s *Store) ListOutboxDue(now string, limit int) ([]ledger.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(outboxSelect+`
WHERE status = 'pending' AND next_attempt_at <= $1::timestamptz
ORDER BY next_attempt_at ASC, notification_id ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectOutbox(rows)
}

type Tx struct {
	tx *sql.Tx
}

func (t *Tx) PutKey(key ledger.KeyRecord) error {
	_, err := t.tx.Exec(
		`INSERT INTO verita_keys(key_id, public_key, created_at, rotated_at)
VALUES($1,$2,$3::timestamptz,$4::timestamptz)
ON CONFLICT(key_id) DO NOTHING`,
		key.KeyID,
		key.PublicKey,
		key.CreatedAt,
		key.RotatedAt,
	)
	return err
}

func (t *Tx) GetKey(keyID string) (ledger.KeyRecord, bool) {
	var rec ledger.KeyRecord
	row := t.tx.QueryRow(`SELECT key_id, public_key, created_at::text, rotated_at::text FROM verita_keys WHERE key_id = $1`, keyID)
	var rotated *string
	if err := row.Scan(&rec.KeyID, &rec.PublicKey, &rec.CreatedAt, &rotated); err != nil {
		return ledger.KeyRecord{}, false
	}
	rec.RotatedAt = rotated
	return rec, true
}

func (t *Tx) PutPolicyVersion(policy ledger.PolicyVersionRecord) error {
	_, err := t.tx.Exec(
		`INSERT INTO verita_policy_versions(policy_hash, policy_id, policy_version, policy_yaml, created_at)
VALUES($1,$2,$3,$4,$5::timestamptz)
ON CONFLICT(policy_hash) DO NOTHING`,
		policy.PolicyHash, policy.PolicyID, policy.PolicyVersion, policy.PolicyYAML, policy.CreatedAt,
	)
	return err
}

func (t *Tx) GetPolicyVersion(policyHash string) (ledger.PolicyVersionRecord, bool) {
	var rec ledger.PolicyVersionRecord
	row := t.tx.QueryRow(`SELECT policy_hash, policy_id, policy_version, policy_yaml, created_at::text FROM verita_policy_versions WHERE policy_hash = $1`, policyHash)
	if err := row.Scan(&rec.PolicyHash, &rec.PolicyID, &rec.PolicyVersion, &rec.PolicyYAML, &rec.CreatedAt); err != nil {
		return ledger.PolicyVersionRecord{}, false
	}
	return rec, true
}

func (t *Tx) PutSubmission(sub ledger.SubmissionRecord) error {
	if !json.Valid(sub.BodyJSON) {
		return errors.New("invalid body_json")
	}
	_, err := t.tx.Exec(`INSERT INTO verita_submissions(submission_id, source, body_json, created_at)
VALUES($1,$2,$3::json,$4::timestamptz)
ON CONFLICT(submission_id) DO NOTHING`,
		sub.SubmissionID, sub.Source, string(sub.BodyJSON), sub.CreatedAt,
	)
	return err
}

func (t *Tx) GetSubmission(submissionID string) (ledger.SubmissionRecord, bool) {
	var rec ledger.SubmissionRecord
	var body string
	row := t.tx.QueryRow(`SELECT submission_id, source, body_json::text, created_at::text FROM verita_submissions WHERE submission_id = $1`, submissionID)
	if err := row.Scan(&rec.SubmissionID, &rec.Source, &body, &rec.CreatedAt); err != nil {
		return ledger.SubmissionRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func (t *Tx) PutRun(run ledger.RunRecord) error {
	_, err := t.tx.Exec(`INSERT INTO verita_runs(run_id, submission_id, report_id, policy_hash, recommendation, open_issues, latest_receipt_id, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::timestamptz,$9::timestamptz)
ON CONFLICT(run_id) DO UPDATE SET
  report_id=excluded.report_id,
  recommendation=excluded.recommendation,
  open_issues=excluded.open_issues,
  latest_receipt_id=excluded.latest_receipt_id,
  updated_at=excluded.updated_at`,
		run.RunID,
		run.SubmissionID,
		run.ReportID,
		run.PolicyHash,
		run.Recommendation,
		run.OpenIssues,
		run.LatestReceiptID,
		run.CreatedAt,
		run.UpdatedAt,
	)
	return err
}

func (t *Tx) GetRun(runID string) (ledger.RunRecord, bool) {
	return scanRun(t.tx.QueryRow(runSelect+` WHERE run_id = $1`, runID))
}

func (t *Tx) GetRunBySubmission(submissionID, policyHash string) (ledger.RunRecord, bool) {
	return scanRun(t.tx.QueryRow(runSelect+` WHERE submission_id = $1 AND policy_hash = $2`, submissionID, policyHash))
}

func (t *Tx) PutReport(report ledger.ReportRecord) error {
	if !json.Valid(report.BodyJSON) {
		return errors.New("invalid body_json")
	}
	_, err := t.tx.Exec(`INSERT INTO verita_reports(report_id, run_id, body_json, created_at)
VALUES($1,$2,$3::json,$4::timestamptz)
ON CONFLICT(report_id) DO NOTHING`,
		report.ReportID, report.RunID, string(report.BodyJSON), report.CreatedAt,
	)
	return err
}

func (t *Tx) GetReport(reportID string) (ledger.ReportRecord, bool) {
	var rec ledger.ReportRecord
	var body string
	row := t.tx.QueryRow(`SELECT report_id, run_id, body_json::text, created_at::text FROM verita_reports WHERE report_id = $1`, reportID)
	if err := row.Scan(&rec.ReportID, &rec.RunID, &body, &rec.CreatedAt); err != nil {
		return ledger.ReportRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func (t *Tx) PutIssue(issue ledger.IssueRecord) error {
	if !json.Valid(issue.BodyJSON) {
		return errors.New("invalid body_json")
	}
	_, err := t.tx.Exec(`INSERT INTO verita_issues(issue_id, run_id, position, record_type, record_id, field, issue_type, severity, state, decision_required, body_json, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::json,$12::timestamptz,$13::timestamptz)
ON CONFLICT(issue_id) DO UPDATE SET
  position=excluded.position,
  state=excluded.state,
  decision_required=excluded.decision_required,
  body_json=excluded.body_json,
  updated_at=excluded.updated_at`,
		issue.IssueID,
		issue.RunID,
		issue.Position,
		issue.RecordType,
		issue.RecordID,
		issue.Field,
		issue.IssueType,
		issue.Severity,
		issue.State,
		issue.DecisionRequired,
		string(issue.BodyJSON),
		issue.CreatedAt,
		issue.UpdatedAt,
	)
	return err
}

func (t *Tx) GetIssue(issueID string) (ledger.IssueRecord, bool) {
	return scanIssue(t.tx.QueryRow(issueSelect+` WHERE issue_id = $1`, issueID))
}

func (t *Tx) ListIssuesByRun(runID string) ([]ledger.IssueRecord, error) {
	rows, err := t.tx.Query(issueSelect+` WHERE run_id = $1 ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectIssues(rows)
}

func (t *Tx) PutDecision(decision ledger.DecisionRecord) error {
	_, err := t.tx.Exec(`INSERT INTO verita_decisions(decision_id, run_id, issue_id, resolution, resolved_value, reviewer, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7::timestamptz)
ON CONFLICT(decision_id) DO NOTHING`,
		decision.DecisionID, decision.RunID, decision.IssueID, decision.Resolution, decision.ResolvedValue, decision.Reviewer, decision.CreatedAt,
	)
	return err
}

func (t *Tx) GetDecision(decisionID string) (ledger.DecisionRecord, bool) {
	var rec ledger.DecisionRecord
	row := t.tx.QueryRow(decisionSelect+` WHERE decision_id = $1`, decisionID)
	if err := row.Scan(&rec.DecisionID, &rec.RunID, &rec.IssueID, &rec.Resolution, &rec.ResolvedValue, &rec.Reviewer, &rec.CreatedAt); err != nil {
		return ledger.DecisionRecord{}, false
	}
	return rec, true
}

func (t *Tx) ListDecisionsByRun(runID string) ([]ledger.DecisionRecord, error) {
	rows, err := t.tx.Query(decisionSelect+` WHERE run_id = $1 ORDER BY created_at ASC, decision_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectDecisions(rows)
}

func (t *Tx) PutReceipt(receipt ledger.ReceiptRecord) error {
	if receipt.ReceiptID == "" {
		return errors.New("missing receipt_id")
	}
	if !json.Valid(receipt.BodyJSON) {
		return errors.New("invalid body_json")
	}
	_, err := t.tx.Exec(`INSERT INTO verita_receipts(receipt_id, run_id, supersedes_receipt_id, policy_hash, recommendation, body_json, body_digest, key_id, sig, created_at)
VALUES($1,$2,$3,$4,$5,$6::json,$7,$8,$9,$10::timestamptz) ON CONFLICT(receipt_id) DO NOTHING`,
		receipt.ReceiptID,
		receipt.RunID,
		receipt.SupersedesReceiptID,
		receipt.PolicyHash,
		receipt.Recommendation,
		string(receipt.BodyJSON),
		receipt.BodyDigest,
		receipt.KeyID,
		receipt.Sig,
		receipt.CreatedAt,
	)
	return err
}

func (t *Tx) GetReceipt(receiptID string) (ledger.ReceiptRecord, bool) {
	return scanReceipt(t.tx.QueryRow(receiptSelect+` WHERE receipt_id = $1`, receiptID))
}

func (t *Tx) PutOutbox(rec ledger.OutboxRecord) error {
	if !json.Valid(rec.PayloadJSON) {
		return errors.New("invalid payload_json")
	}
	_, err := t.tx.Exec(
		`INSERT INTO verita_outbox(notification_id, run_id, target, payload_json, status, attempt_count, next_attempt_at, last_error, sent_at, created_at, updated_at)
VALUES($1,$2,$3,$4::json,$5,$6,$7::timestamptz,$8,$9::timestamptz,$10::timestamptz,$11::timestamptz)
ON CONFLICT(notification_id) DO UPDATE SET
  status=excluded.status,
  attempt_count=excluded.attempt_count,
  next_attempt_at=excluded.next_attempt_at,
  last_error=excluded.last_error,
  sent_at=excluded.sent_at,
  updated_at=excluded.updated_at`,
		rec.NotificationID,
		rec.RunID,
		rec.Target,
		string(rec.PayloadJSON),
		rec.Status,
		rec.AttemptCount,
		rec.NextAttemptAt,
		rec.LastError,
		rec.SentAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

func (t *Tx) GetOutbox(notificationID string) (ledger.OutboxRecord, bool) {
	return scanOutbox(t.tx.QueryRow(outboxSelect+` WHERE notification_id = $1`, notificationID))
}

func (t *Tx) ListOutboxDue(now string, limit int) ([]ledger.OutboxRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.Query(outboxSelect+`
WHERE status = 'pending' AND next_attempt_at <= $1::timestamptz
ORDER BY next_attempt_at ASC, notification_id ASC
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectOutbox(rows)
}

const (
	runSelect      = `SELECT run_id, submission_id, report_id, policy_hash, recommendation, open_issues, latest_receipt_id, created_at::text, updated_at::text FROM verita_runs`
	issueSelect    = `SELECT issue_id, run_id, position, record_type, record_id, field, issue_type, severity, state, decision_required, body_json::text, created_at::text, updated_at::text FROM verita_issues`
	decisionSelect = `SELECT decision_id, run_id, issue_id, resolution, resolved_value, reviewer, created_at::text FROM verita_decisions`
	receiptSelect  = `SELECT receipt_id, run_id, supersedes_receipt_id, policy_hash, recommendation, body_json::text, body_digest, key_id, sig, created_at::text FROM verita_receipts`
	outboxSelect   = `SELECT notification_id, run_id, target, payload_json::text, status, attempt_count, next_attempt_at::text, last_error, sent_at::text, created_at::text, updated_at::text FROM verita_outbox`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (ledger.RunRecord, bool) {
	var rec ledger.RunRecord
	if err := row.Scan(&rec.RunID, &rec.SubmissionID, &rec.ReportID, &rec.PolicyHash, &rec.Recommendation, &rec.OpenIssues, &rec.LatestReceiptID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.RunRecord{}, false
	}
	return rec, true
}

func scanIssue(row rowScanner) (ledger.IssueRecord, bool) {
	var rec ledger.IssueRecord
	var body string
	if err := row.Scan(&rec.IssueID, &rec.RunID, &rec.Position, &rec.RecordType, &rec.RecordID, &rec.Field, &rec.IssueType, &rec.Severity, &rec.State, &rec.DecisionRequired, &body, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.IssueRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func scanReceipt(row rowScanner) (ledger.ReceiptRecord, bool) {
	var rec ledger.ReceiptRecord
	var body string
	if err := row.Scan(&rec.ReceiptID, &rec.RunID, &rec.SupersedesReceiptID, &rec.PolicyHash, &rec.Recommendation, &body, &rec.BodyDigest, &rec.KeyID, &rec.Sig, &rec.CreatedAt); err != nil {
		return ledger.ReceiptRecord{}, false
	}
	rec.BodyJSON = []byte(body)
	return rec, true
}

func scanOutbox(row rowScanner) (ledger.OutboxRecord, bool) {
	var rec ledger.OutboxRecord
	var payload string
	if err := row.Scan(&rec.NotificationID, &rec.RunID, &rec.Target, &payload, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ledger.OutboxRecord{}, false
	}
	rec.PayloadJSON = []byte(payload)
	return rec, true
}

func collectIssues(rows *sql.Rows) ([]ledger.IssueRecord, error) {
	defer rows.Close()
	out := []ledger.IssueRecord{}
	for rows.Next() {
		var rec ledger.IssueRecord
		var body string
		if err := rows.Scan(&rec.IssueID, &rec.RunID, &rec.Position, &rec.RecordType, &rec.RecordID, &rec.Field, &rec.IssueType, &rec.Severity, &rec.State, &rec.DecisionRequired, &body, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.BodyJSON = []byte(body)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func collectDecisions(rows *sql.Rows) ([]ledger.DecisionRecord, error) {
	defer rows.Close()
	out := []ledger.DecisionRecord{}
	for rows.Next() {
		var rec ledger.DecisionRecord
		if err := rows.Scan(&rec.DecisionID, &rec.RunID, &rec.IssueID, &rec.Resolution, &rec.ResolvedValue, &rec.Reviewer, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func collectOutbox(rows *sql.Rows) ([]ledger.OutboxRecord, error) {
	defer rows.Close()
	out := []ledger.OutboxRecord{}
	for rows.Next() {
		var rec ledger.OutboxRecord
		var payload string
		if err := rows.Scan(&rec.NotificationID, &rec.RunID, &rec.Target, &payload, &rec.Status, &rec.AttemptCount, &rec.NextAttemptAt, &rec.LastError, &rec.SentAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.PayloadJSON = []byte(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}
