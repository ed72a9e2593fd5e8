// Package notify queues webhook notifications for runs that need review and
// delivers them from the ledger outbox with retry and backoff.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dverna/verita/internal/ledger"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusDead    = "dead"
)

const topIssueLimit = 3

// OutboxStore is the slice of the ledger the enqueue path needs. Both
// ledger.Store and ledger.Tx satisfy it, so enqueueing can ride the
// submit transaction.
type OutboxStore interface {
	GetOutbox(notificationID string) (ledger.OutboxRecord, bool)
	PutOutbox(rec ledger.OutboxRecord) error
}

// EnqueueReviewRequired queues one webhook notification for a run. A run
// that is already queued (or already delivered) keeps its existing entry,
// so idempotent re-submissions do not re-notify.
func EnqueueReviewRequired(store OutboxStore, run ledger.RunRecord, issues []ledger.IssueRecord, target string, now time.Time) (ledger.OutboxRecord, error) {
	if store == nil {
		return ledger.OutboxRecord{}, fmt.Errorf("missing store")
	}
	if target == "" {
		return ledger.OutboxRecord{}, fmt.Errorf("missing webhook target")
	}

	notificationID := "webhook:" + run.RunID
	if existing, ok := store.GetOutbox(notificationID); ok {
		return existing, nil
	}

	counts := ledger.CountIssues(issues)
	payload := Payload{
		Schema:         PayloadSchema,
		RunID:          run.RunID,
		SubmissionID:   run.SubmissionID,
		ReportID:       run.ReportID,
		Recommendation: run.Recommendation,
		Issues: IssueSummary{
			Total:            counts.Total,
			Open:             counts.Open,
			DecisionRequired: counts.DecisionRequired,
			Resolved:         counts.Resolved,
			Deferred:         counts.Deferred,
		},
	}
	// Issues arrive in router order, so the head of the list is the most
	// severe slice of the run.
	for _, issue := range issues {
		if len(payload.TopIssues) >= topIssueLimit {
			break
		}
		payload.TopIssues = append(payload.TopIssues, TopIssue{
			IssueID:   issue.IssueID,
			Field:     issue.Field,
			IssueType: issue.IssueType,
			Severity:  issue.Severity,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ledger.OutboxRecord{}, err
	}

	ts := now.UTC().Format(time.RFC3339)
	rec := ledger.OutboxRecord{
		NotificationID: notificationID,
		RunID:          run.RunID,
		Target:         target,
		PayloadJSON:    body,
		Status:         OutboxStatusPending,
		AttemptCount:   0,
		NextAttemptAt:  ts,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	if err := store.PutOutbox(rec); err != nil {
		return ledger.OutboxRecord{}, err
	}
	return rec, nil
}

// ProcessOutboxDue posts due pending notifications and updates the outbox.
// Failed posts back off exponentially; a malformed payload is dead-lettered
// instead of retried forever.
func ProcessOutboxDue(ctx context.Context, store ledger.Store, poster WebhookPoster, now time.Time, limit int) (int, error) {
	if store == nil {
		return 0, fmt.Errorf("missing store")
	}
	if poster == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}

	due, err := store.ListOutboxDue(now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, rec := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if rec.Status != OutboxStatusPending {
			continue
		}

		if !json.Valid(rec.PayloadJSON) {
			msg := "invalid payload_json"
			rec.LastError = &msg
			rec.Status = OutboxStatusDead
			rec.UpdatedAt = now.UTC().Format(time.RFC3339)
			if err := store.PutOutbox(rec); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		if err := poster.Post(ctx, rec.Target, rec.PayloadJSON); err != nil {
			next := nextAttempt(rec.AttemptCount)
			rec.AttemptCount++
			rec.NextAttemptAt = now.UTC().Add(next).Format(time.RFC3339)
			msg := err.Error()
			rec.LastError = &msg
			rec.UpdatedAt = now.UTC().Format(time.RFC3339)
			if err := store.PutOutbox(rec); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		rec.Status = OutboxStatusSent
		sentAt := now.UTC().Format(time.RFC3339)
		rec.SentAt = &sentAt
		rec.UpdatedAt = sentAt
		if err := store.PutOutbox(rec); err != nil {
			return processed, err
		}
		processed++
	}

	return processed, nil
}

func nextAttempt(attemptCount int) time.Duration {
	// 5s, 10s, 20s, 40s, 80s, 160s, ... capped at 5m.
	base := 5 * time.Second
	if attemptCount <= 0 {
		return base
	}
	d := base << attemptCount
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}

// RunOutboxWorker polls and processes due outbox entries until ctx is
// cancelled.
func RunOutboxWorker(ctx context.Context, store ledger.Store, poster WebhookPoster, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_, _ = ProcessOutboxDue(ctx, store, poster, now, 25)
		}
	}
}
