package model

import "time"

// Batch webhook delivery statuses.
const (
	WebhookUnset  = "unset"
	WebhookSent   = "sent"
	WebhookFailed = "failed"
)

// BatchJob groups enterprise render tasks under one job. The completion
// webhook is attempted only after every child task is terminal, and its
// delivery bookkeeping lives on the job row so redeliveries can be
// audited.
type BatchJob struct {
	ID                int64      `json:"-"`
	BatchID           string     `json:"batch_id"`
	UserID            string     `json:"user_id"`
	ModelID           string     `json:"model_id"`
	TotalCount        int        `json:"total_count"`
	SucceededCount    int        `json:"succeeded_count"`
	FailedCount       int        `json:"failed_count"`
	CreditsSpent      int64      `json:"credits_spent"`
	WebhookURL        string     `json:"webhook_url,omitempty"`
	WebhookSecret     string     `json:"-"`
	WebhookStatus     string     `json:"webhook_status"`
	WebhookAttempts   int        `json:"webhook_attempts"`
	WebhookLastError  string     `json:"webhook_last_error,omitempty"`
	WebhookLastSentAt *time.Time `json:"webhook_last_sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// AllTerminal reports whether every child task has reached a terminal
// state.
func (b *BatchJob) AllTerminal() bool {
	return b.SucceededCount+b.FailedCount >= b.TotalCount
}

// BatchSummary is the payload delivered to the customer's webhook when
// a batch completes.
type BatchSummary struct {
	BatchID      string `json:"batch_id"`
	UserID       string `json:"user_id"`
	Status       string `json:"status"`
	TotalCount   int    `json:"total_count"`
	SuccessCount int    `json:"success_count"`
	FailedCount  int    `json:"failed_count"`
	CreditsSpent int64  `json:"credits_spent"`
	Timestamp    int64  `json:"timestamp"`
}
