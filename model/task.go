package model

import "time"

// Render task statuses. Pending and processing are transient; succeeded
// and failed are terminal and never transition further.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskSucceeded  = "succeeded"
	TaskFailed     = "failed"
)

// RenderTask tracks one remote render job from submission through its
// terminal state. A failed terminal transition triggers exactly one
// refund attempt for the associated consumption record.
type RenderTask struct {
	ID            int64      `json:"-"`
	TaskID        string     `json:"task_id"`
	UserID        string     `json:"user_id"`
	BatchID       string     `json:"batch_id,omitempty"`
	ModelID       string     `json:"model_id"`
	ProviderRef   string     `json:"provider_ref"`
	ConsumptionID string     `json:"consumption_id"`
	Status        string     `json:"status"`
	Progress      int        `json:"progress"`
	VideoURL      string     `json:"video_url,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the task has reached a final state.
func (t *RenderTask) IsTerminal() bool {
	return t.Status == TaskSucceeded || t.Status == TaskFailed
}
