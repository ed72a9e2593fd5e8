package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookPoster delivers a notification payload to a target URL.
type WebhookPoster interface {
	Post(ctx context.Context, target string, payload []byte) error
}

const PayloadSchema = "verita.notification.v0.1"

// Payload is the webhook body sent when a run needs review.
type Payload struct {
	Schema         string       `json:"schema"`
	RunID          string       `json:"run_id"`
	SubmissionID   string       `json:"submission_id"`
	ReportID       string       `json:"report_id"`
	Recommendation string       `json:"recommendation"`
	Issues         IssueSummary `json:"issues"`
	TopIssues      []TopIssue   `json:"top_issues"`
}

type IssueSummary struct {
	Total            int `json:"total"`
	Open             int `json:"open"`
	DecisionRequired int `json:"decision_required"`
	Resolved         int `json:"resolved"`
	Deferred         int `json:"deferred"`
}

type TopIssue struct {
	IssueID   string `json:"issue_id"`
	Field     string `json:"field"`
	IssueType string `json:"issue_type"`
	Severity  string `json:"severity"`
}

// HTTPPoster posts payloads as JSON over HTTP. Any non-2xx response is an
// error so the outbox retries it.
type HTTPPoster struct {
	Client *http.Client
}

func NewHTTPPoster(timeout time.Duration) *HTTPPoster {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPoster{Client: &http.Client{Timeout: timeout}}
}

func (p *HTTPPoster) Post(ctx context.Context, target string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
