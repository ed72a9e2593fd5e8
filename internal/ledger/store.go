// Package ledger persists review state: runs, issues, decisions, signed
// receipts, signing keys, and the notification outbox. Reports and
// submissions are stored as their canonical JSON bodies; the ledger never
// re-encodes them.
package ledger

type Store interface {
	WithTx(fn func(Tx) error) error

	PutKey(key KeyRecord) error
	GetKey(keyID string) (KeyRecord, bool)

	PutPolicyVersion(policy PolicyVersionRecord) error
	GetPolicyVersion(policyHash string) (PolicyVersionRecord, bool)

	PutSubmission(sub SubmissionRecord) error
	GetSubmission(submissionID string) (SubmissionRecord, bool)

	PutRun(run RunRecord) error
	GetRun(runID string) (RunRecord, bool)
	GetRunBySubmission(submissionID, policyHash string) (RunRecord, bool)

	PutReport(report ReportRecord) error
	GetReport(reportID string) (ReportRecord, bool)

	PutIssue(issue IssueRecord) error
	GetIssue(issueID string) (IssueRecord, bool)
	ListIssuesByRun(runID string) ([]IssueRecord, error)

	PutDecision(decision DecisionRecord) error
	GetDecision(decisionID string) (DecisionRecord, bool)
	ListDecisionsByRun(runID string) ([]DecisionRecord, error)

	PutReceipt(receipt ReceiptRecord) error
	GetReceipt(receiptID string) (ReceiptRecord, bool)

	PutOutbox(rec OutboxRecord) error
	GetOutbox(notificationID string) (OutboxRecord, bool)
	ListOutboxDue(now string, limit int) ([]OutboxRecord, error)
}

type Tx interface {
	PutKey(key KeyRecord) error
	GetKey(keyID string) (KeyRecord, bool)

	PutPolicyVersion(policy PolicyVersionRecord) error
	GetPolicyVersion(policyHash string) (PolicyVersionRecord, bool)

	PutSubmission(sub SubmissionRecord) error
	GetSubmission(submissionID string) (SubmissionRecord, bool)

	PutRun(run RunRecord) error
	GetRun(runID string) (RunRecord, bool)
	GetRunBySubmission(submissionID, policyHash string) (RunRecord, bool)

	PutReport(report ReportRecord) error
	GetReport(reportID string) (ReportRecord, bool)

	PutIssue(issue IssueRecord) error
	GetIssue(issueID string) (IssueRecord, bool)
	ListIssuesByRun(runID string) ([]IssueRecord, error)

	PutDecision(decision DecisionRecord) error
	GetDecision(decisionID string) (DecisionRecord, bool)
	ListDecisionsByRun(runID string) ([]DecisionRecord, error)

	PutReceipt(receipt ReceiptRecord) error
	GetReceipt(receiptID string) (ReceiptRecord, bool)

	PutOutbox(rec OutboxRecord) error
	GetOutbox(notificationID string) (OutboxRecord, bool)
	ListOutboxDue(now string, limit int) ([]OutboxRecord, error)
}

type PolicyVersionRecord struct {
	PolicyHash    string
	PolicyID      string
	PolicyVersion string
	PolicyYAML    string
	CreatedAt     string
}

type KeyRecord struct {
	KeyID     string
	PublicKey []byte
	CreatedAt string
	RotatedAt *string
}

// SubmissionRecord keeps the submission exactly as received, keyed by its
// content-addressed id.
type SubmissionRecord struct {
	SubmissionID string
	Source       string
	BodyJSON     []byte
	CreatedAt    string
}

// RunRecord is one validation run: a submission evaluated under one policy
// version. Resubmitting identical content under the same policy maps onto
// the same run.
type RunRecord struct {
	RunID           string
	SubmissionID    string
	ReportID        string
	PolicyHash      string
	Recommendation  string
	OpenIssues      int
	LatestReceiptID string
	CreatedAt       string
	UpdatedAt       string
}

type ReportRecord struct {
	ReportID  string
	RunID     string
	BodyJSON  []byte
	CreatedAt string
}

// IssueRecord carries an issue's routing state alongside its full JSON
// body. Position is the router's deterministic ordering within the run.
type IssueRecord struct {
	IssueID          string
	RunID            string
	Position         int
	RecordType       string
	RecordID         string
	Field            string
	IssueType        string
	Severity         string
	State            string
	DecisionRequired bool
	BodyJSON         []byte
	CreatedAt        string
	UpdatedAt        string
}

type DecisionRecord struct {
	DecisionID    string
	RunID         string
	IssueID       string
	Resolution    string
	ResolvedValue string
	Reviewer      string
	CreatedAt     string
}

type ReceiptRecord struct {
	ReceiptID           string
	RunID               string
	SupersedesReceiptID *string
	PolicyHash          string
	Recommendation      string
	BodyJSON            []byte
	BodyDigest          string
	KeyID               string
	Sig                 []byte
	CreatedAt           string
}

// OutboxRecord is one pending reviewer notification. Status moves
// pending -> sent on delivery, or pending -> dead when the payload cannot
// be posted at all.
type OutboxRecord struct {
	NotificationID string
	RunID          string
	Target         string
	PayloadJSON    []byte
	Status         string // pending | sent | dead
	AttemptCount   int
	NextAttemptAt  string
	LastError      *string
	SentAt         *string
	CreatedAt      string
	UpdatedAt      string
}
