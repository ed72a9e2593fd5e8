package types

type Resolution string

const (
	ResolutionAccepted Resolution = "accepted"
	ResolutionRejected Resolution = "rejected"
	ResolutionDeferred Resolution = "deferred"
)

// ReviewDecision is supplied by the human-review collaborator on a later
// run. The engine never fabricates one; it only marks which issues need one.
type ReviewDecision struct {
	IssueID       string     `json:"issue_id"`
	Resolution    Resolution `json:"resolution"`
	ResolvedValue string     `json:"resolved_value,omitempty"`
	Reviewer      string     `json:"reviewer,omitempty"`
	Note          string     `json:"note,omitempty"`
}
