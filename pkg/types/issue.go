package types

type IssueType string

const (
	IssueInconsistency        IssueType = "inconsistency"
	IssueLowConfidence        IssueType = "low_confidence"
	IssueNormalizationFailure IssueType = "normalization_failure"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IssueState is the review lifecycle of an issue. Detected issues are routed
// to auto_fix_available or needs_human; resolved and deferred are terminal.
type IssueState string

const (
	IssueDetected         IssueState = "detected"
	IssueAutoFixAvailable IssueState = "auto_fix_available"
	IssueNeedsHuman       IssueState = "needs_human"
	IssueResolved         IssueState = "resolved"
	IssueDeferred         IssueState = "deferred"
)

// RecordRef identifies one record involved in an issue.
type RecordRef struct {
	RecordType RecordType `json:"record_type"`
	RecordID   string     `json:"record_id"`
}

// EntityRef identifies the real-world entity a group of records describes,
// e.g. {kind: policy_number, value: PLZ-RCA-77821}.
type EntityRef struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Variant is one distinct normalized value observed for a conflicting field.
type Variant struct {
	Value   string      `json:"value"`
	Count   int         `json:"count"`
	Sources []SourceRef `json:"sources,omitempty"`
}

// Issue is a single finding emitted by the scorer or the consistency
// checker. Confidence is nil for inconsistency issues: picking which variant
// is correct is not a property of any single extraction.
type Issue struct {
	IssueID          string      `json:"issue_id"`
	Type             IssueType   `json:"type"`
	Severity         Severity    `json:"severity"`
	State            IssueState  `json:"state"`
	RecordType       RecordType  `json:"record_type,omitempty"`
	RecordID         string      `json:"record_id,omitempty"`
	Field            string      `json:"field"`
	Confidence       *float64    `json:"confidence,omitempty"`
	Reason           string      `json:"reason"`
	Evidence         *SourceRef  `json:"evidence,omitempty"`
	Entity           *EntityRef  `json:"entity,omitempty"`
	Records          []RecordRef `json:"records,omitempty"`
	Variants         []Variant   `json:"variants,omitempty"`
	Suggestion       string      `json:"suggestion,omitempty"`
	DecisionRequired bool        `json:"decision_required"`

	Resolution *IssueResolution `json:"resolution,omitempty"`
}

// IssueResolution records how a terminal issue was closed. ResolvedAt is
// empty for auto-applied fixes: they happen inside the run, which carries no
// clock of its own.
type IssueResolution struct {
	Resolution    Resolution `json:"resolution"`
	ResolvedValue string     `json:"resolved_value,omitempty"`
	Reviewer      string     `json:"reviewer,omitempty"`
	ResolvedAt    string     `json:"resolved_at,omitempty"`
	Source        string     `json:"source"` // reviewer | auto_apply
}

// AutoFix is a formatting-only correction suggestion. It may reference an
// issue on the same field, but a clean field with a sloppy surface form gets
// a suggestion without any issue.
type AutoFix struct {
	IssueID    string     `json:"issue_id,omitempty"`
	RecordType RecordType `json:"record_type"`
	RecordID   string     `json:"record_id"`
	Field      string     `json:"field"`
	Original   string     `json:"original"`
	Suggested  string     `json:"suggested"`
	Transform  string     `json:"transform"`
	Confidence float64    `json:"confidence"`
}
