// Package intake parses submission bundles and computes their
// content-addressed identity. A submission that cannot be parsed at all is
// an error; individual malformed records are isolated into issues so the
// rest of the bundle still runs.
package intake

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dverna/verita/internal/crypto"
	"github.com/dverna/verita/internal/review"
	"github.com/dverna/verita/pkg/types"
)

const SubmissionSchema = "verita.submission.v0.1"

type envelope struct {
	Schema  string                 `json:"schema"`
	Source  types.SubmissionSource `json:"source"`
	Records []json.RawMessage      `json:"records"`
}

// Parse decodes a submission, screens its records and computes the
// submission id over everything received, well-formed or not. Identical
// bytes always map onto the same id.
func Parse(data []byte) (types.Submission, []types.Issue, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return types.Submission{}, nil, fmt.Errorf("parse submission: %w", err)
	}
	if env.Schema == "" {
		env.Schema = SubmissionSchema
	}

	sub := types.Submission{Schema: env.Schema, Source: env.Source}

	var issues []types.Issue
	recordViews := make([]any, 0, len(env.Records))
	for i, raw := range env.Records {
		rec, issue, ok := screenRecord(i, raw)
		if !ok {
			issues = append(issues, issue)
			recordViews = append(recordViews, digestRaw(raw))
			continue
		}
		sub.Records = append(sub.Records, rec)
		recordViews = append(recordViews, rec)
	}

	id, err := submissionID(env.Schema, env.Source, recordViews)
	if err != nil {
		return types.Submission{}, nil, fmt.Errorf("submission id: %w", err)
	}
	sub.SubmissionID = id
	return sub, issues, nil
}

// New builds a submission from already-structured records, for callers that
// skip the wire format.
func New(source types.SubmissionSource, records []types.ExtractedRecord) (types.Submission, error) {
	views := make([]any, 0, len(records))
	for _, rec := range records {
		views = append(views, rec)
	}
	id, err := submissionID(SubmissionSchema, source, views)
	if err != nil {
		return types.Submission{}, err
	}
	return types.Submission{
		Schema:       SubmissionSchema,
		SubmissionID: id,
		Source:       source,
		Records:      records,
	}, nil
}

func screenRecord(index int, raw json.RawMessage) (types.ExtractedRecord, types.Issue, bool) {
	var rec types.ExtractedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, malformedIssue(index, rec, fmt.Sprintf("record %d is not a valid record object", index)), false
	}
	if rec.RecordID == "" {
		return rec, malformedIssue(index, rec, fmt.Sprintf("record %d is missing record_id", index)), false
	}
	if rec.RecordType == "" {
		return rec, malformedIssue(index, rec, fmt.Sprintf("record %d is missing record_type", index)), false
	}
	return rec, types.Issue{}, true
}

func malformedIssue(index int, rec types.ExtractedRecord, reason string) types.Issue {
	zero := 0.0
	issue := types.Issue{
		Type:       types.IssueNormalizationFailure,
		Severity:   types.SeverityHigh,
		State:      types.IssueDetected,
		RecordType: rec.RecordType,
		RecordID:   rec.RecordID,
		Field:      "record",
		Confidence: &zero,
		Reason:     reason,
	}
	issue.IssueID = review.IssueID(map[string]any{
		"type":   string(issue.Type),
		"index":  index,
		"reason": reason,
	})
	return issue
}

// digestRaw stands in for a record that could not be parsed, keeping the
// submission id sensitive to its content but not its whitespace.
func digestRaw(raw json.RawMessage) string {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return crypto.DigestWithPrefix(raw)
	}
	return crypto.DigestWithPrefix(compact.Bytes())
}

func submissionID(schema string, source types.SubmissionSource, recordViews []any) (string, error) {
	view := map[string]any{
		"schema": schema,
		"source": map[string]any{
			"kind":      source.Kind,
			"document":  source.Document,
			"extractor": source.Extractor,
			"batch":     source.Batch,
		},
		"records": recordViews,
	}
	canonical, err := crypto.Canonicalize(view)
	if err != nil {
		return "", err
	}
	return crypto.DigestWithPrefix(canonical), nil
}
