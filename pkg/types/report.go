package types

type Recommendation string

const (
	RecommendApprove        Recommendation = "APPROVE"
	RecommendReviewRequired Recommendation = "REVIEW_REQUIRED"
)

type ReportPolicy struct {
	PolicyID      string `json:"policy_id"`
	PolicyVersion string `json:"policy_version"`
	PolicyHash    string `json:"policy_hash"`
}

type ReportSummary struct {
	RecordCount       int `json:"record_count"`
	RecordsWithIssues int `json:"records_with_issues"`
	IssueCount        int `json:"issue_count"`
	DecisionRequired  int `json:"decision_required"`
	AutoFixCount      int `json:"auto_fix_count"`
}

// ReportField is a normalized field as included in the report record set.
type ReportField struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	Raw        string    `json:"raw"`
	Normalized string    `json:"normalized,omitempty"`
	Confidence float64   `json:"confidence"`
	Failed     bool      `json:"failed,omitempty"`
}

type ReportRecord struct {
	RecordID   string        `json:"record_id"`
	RecordType RecordType    `json:"record_type"`
	Fields     []ReportField `json:"fields"`
}

// Report is the structured bundle handed to the report-rendering
// collaborator. It carries no timestamp: identical input under the same
// policy always produces byte-identical report JSON, and ReportID is the
// digest of the canonical body.
type Report struct {
	Schema         string         `json:"schema"`
	ReportID       string         `json:"report_id"`
	SubmissionID   string         `json:"submission_id"`
	Policy         ReportPolicy   `json:"policy"`
	Summary        ReportSummary  `json:"summary"`
	Records        []ReportRecord `json:"records"`
	Issues         []Issue        `json:"issues"`
	AutoFixes      []AutoFix      `json:"auto_fixes"`
	Recommendation Recommendation `json:"recommendation"`
}
