package ledger

import (
	"sort"
	"sync"
)

type InMemoryStore struct {
	mu sync.Mutex

	keys        map[string]KeyRecord
	policies    map[string]PolicyVersionRecord
	submissions map[string]SubmissionRecord
	runs        map[string]RunRecord
	reports     map[string]ReportRecord
	issues      map[string]IssueRecord
	decisions   map[string]DecisionRecord
	receipts    map[string]ReceiptRecord
	outbox      map[string]OutboxRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		keys:        make(map[string]KeyRecord),
		policies:    make(map[string]PolicyVersionRecord),
		submissions: make(map[string]SubmissionRecord),
		runs:        make(map[string]RunRecord),
		reports:     make(map[string]ReportRecord),
		issues:      make(map[string]IssueRecord),
		decisions:   make(map[string]DecisionRecord),
		receipts:    make(map[string]ReceiptRecord),
		outbox:      make(map[string]OutboxRecord),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*memTx)(s))
}

type memTx InMemoryStore

func runBySubmission(runs map[string]RunRecord, submissionID, policyHash string) (RunRecord, bool) {
	for _, run := range runs {
		if run.SubmissionID == submissionID && run.PolicyHash == policyHash {
			return run, true
		}
	}
	return RunRecord{}, false
}

func issuesByRun(issues map[string]IssueRecord, runID string) []IssueRecord {
	out := []IssueRecord{}
	for _, issue := range issues {
		if issue.RunID == runID {
			out = append(out, issue)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func decisionsByRun(decisions map[string]DecisionRecord, runID string) []DecisionRecord {
	out := []DecisionRecord{}
	for _, dec := range decisions {
		if dec.RunID == runID {
			out = append(out, dec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].DecisionID < out[j].DecisionID
	})
	return out
}

func outboxDue(outbox map[string]OutboxRecord, now string, limit int) []OutboxRecord {
	out := []OutboxRecord{}
	for _, rec := range outbox {
		if rec.Status != "pending" {
			continue
		}
		if rec.NextAttemptAt > now {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextAttemptAt != out[j].NextAttemptAt {
			return out[i].NextAttemptAt < out[j].NextAttemptAt
		}
		return out[i].NotificationID < out[j].NotificationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *InMemoryStore) PutKey(key KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.KeyID] = key
	return nil
}

func (s *InMemoryStore) GetKey(keyID string) (KeyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[keyID]
	return key, ok
}

func (s *InMemoryStore) PutPolicyVersion(policy PolicyVersionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[policy.PolicyHash] = policy
	return nil
}

func (s *InMemoryStore) GetPolicyVersion(policyHash string) (PolicyVersionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[policyHash]
	return policy, ok
}

func (s *InMemoryStore) PutSubmission(sub SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.SubmissionID] = sub
	return nil
}

func (s *InMemoryStore) GetSubmission(submissionID string) (SubmissionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[submissionID]
	return sub, ok
}

func (s *InMemoryStore) PutRun(run RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *InMemoryStore) GetRun(runID string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	return run, ok
}

func (s *InMemoryStore) GetRunBySubmission(submissionID, policyHash string) (RunRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return runBySubmission(s.runs, submissionID, policyHash)
}

func (s *InMemoryStore) PutReport(report ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ReportID] = report
	return nil
}

func (s *InMemoryStore) GetReport(reportID string) (ReportRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, ok := s.reports[reportID]
	return report, ok
}

func (s *InMemoryStore) PutIssue(issue IssueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues[issue.IssueID] = issue
	return nil
}

func (s *InMemoryStore) GetIssue(issueID string) (IssueRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	issue, ok := s.issues[issueID]
	return issue, ok
}

func (s *InMemoryStore) ListIssuesByRun(runID string) ([]IssueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return issuesByRun(s.issues, runID), nil
}

func (s *InMemoryStore) PutDecision(decision DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[decision.DecisionID] = decision
	return nil
}

func (s *InMemoryStore) GetDecision(decisionID string) (DecisionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decision, ok := s.decisions[decisionID]
	return decision, ok
}

func (s *InMemoryStore) ListDecisionsByRun(runID string) ([]DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decisionsByRun(s.decisions, runID), nil
}

func (s *InMemoryStore) PutReceipt(receipt ReceiptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[receipt.ReceiptID] = receipt
	return nil
}

func (s *InMemoryStore) GetReceipt(receiptID string) (ReceiptRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	receipt, ok := s.receipts[receiptID]
	return receipt, ok
}

func (s *InMemoryStore) PutOutbox(rec OutboxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[rec.NotificationID] = rec
	return nil
}

func (s *InMemoryStore) GetOutbox(notificationID string) (OutboxRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outbox[notificationID]
	return rec, ok
}

func (s *InMemoryStore) ListOutboxDue(now string, limit int) ([]OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return outboxDue(s.outbox, now, limit), nil
}

func (t *memTx) PutKey(key KeyRecord) error {
	(*InMemoryStore)(t).keys[key.KeyID] = key
	return nil
}

func (t *memTx) GetKey(keyID string) (KeyRecord, bool) {
	key, ok := (*InMemoryStore)(t).keys[keyID]
	return key, ok
}

func (t *memTx) PutPolicyVersion(policy PolicyVersionRecord) error {
	(*InMemoryStore)(t).policies[policy.PolicyHash] = policy
	return nil
}

func (t *memTx) GetPolicyVersion(policyHash string) (PolicyVersionRecord, bool) {
	policy, ok := (*InMemoryStore)(t).policies[policyHash]
	return policy, ok
}

func (t *memTx) PutSubmission(sub SubmissionRecord) error {
	(*InMemoryStore)(t).submissions[sub.SubmissionID] = sub
	return nil
}

func (t *memTx) GetSubmission(submissionID string) (SubmissionRecord, bool) {
	sub, ok := (*InMemoryStore)(t).submissions[submissionID]
	return sub, ok
}

func (t *memTx) PutRun(run RunRecord) error {
	(*InMemoryStore)(t).runs[run.RunID] = run
	return nil
}

func (t *memTx) GetRun(runID string) (RunRecord, bool) {
	run, ok := (*InMemoryStore)(t).runs[runID]
	return run, ok
}

func (t *memTx) GetRunBySubmission(submissionID, policyHash string) (RunRecord, bool) {
	return runBySubmission((*InMemoryStore)(t).runs, submissionID, policyHash)
}

func (t *memTx) PutReport(report ReportRecord) error {
	(*InMemoryStore)(t).reports[report.ReportID] = report
	return nil
}

func (t *memTx) GetReport(reportID string) (ReportRecord, bool) {
	report, ok := (*InMemoryStore)(t).reports[reportID]
	return report, ok
}

func (t *memTx) PutIssue(issue IssueRecord) error {
	(*InMemoryStore)(t).issues[issue.IssueID] = issue
	return nil
}

func (t *memTx) GetIssue(issueID string) (IssueRecord, bool) {
	issue, ok := (*InMemoryStore)(t).issues[issueID]
	return issue, ok
}

func (t *memTx) ListIssuesByRun(runID string) ([]IssueRecord, error) {
	return issuesByRun((*InMemoryStore)(t).issues, runID), nil
}

func (t *memTx) PutDecision(decision DecisionRecord) error {
	(*InMemoryStore)(t).decisions[decision.DecisionID] = decision
	return nil
}

func (t *memTx) GetDecision(decisionID string) (DecisionRecord, bool) {
	decision, ok := (*InMemoryStore)(t).decisions[decisionID]
	return decision, ok
}

func (t *memTx) ListDecisionsByRun(runID string) ([]DecisionRecord, error) {
	return decisionsByRun((*InMemoryStore)(t).decisions, runID), nil
}

func (t *memTx) PutReceipt(receipt ReceiptRecord) error {
	(*InMemoryStore)(t).receipts[receipt.ReceiptID] = receipt
	return nil
}

func (t *memTx) GetReceipt(receiptID string) (ReceiptRecord, bool) {
	receipt, ok := (*InMemoryStore)(t).receipts[receiptID]
	return receipt, ok
}

func (t *memTx) PutOutbox(rec OutboxRecord) error {
	(*InMemoryStore)(t).outbox[rec.NotificationID] = rec
	return nil
}

func (t *memTx) GetOutbox(notificationID string) (OutboxRecord, bool) {
	rec, ok := (*InMemoryStore)(t).outbox[notificationID]
	return rec, ok
}

func (t *memTx) ListOutboxDue(now string, limit int) ([]OutboxRecord, error) {
	return outboxDue((*InMemoryStore)(t).outbox, now, limit), nil
}
