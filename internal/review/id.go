// Package review owns the issue lifecycle: identifiers, routing to a
// handling lane, decision intake and the resulting state transitions.
package review

import (
	"github.com/dverna/verita/internal/crypto"
)

// IssueID derives a stable identifier from the fields that make an issue
// what it is. The same finding on the same submission always gets the same
// id, so reruns and retries stay idempotent.
func IssueID(view map[string]any) string {
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		// Views are string-valued maps assembled by callers in this module.
		panic(err)
	}
	return "issue-" + crypto.DigestShort(canonical)
}
