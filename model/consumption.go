package model

import "time"

const (
	ConsumptionCompleted = "completed"
	ConsumptionRefunded  = "refunded"
)

// Consumption records a single paid action, typically one video render.
// Credits holds the positive magnitude spent; the refund path credits
// exactly this amount back and flips the status once.
type Consumption struct {
	ID            int64      `json:"-"`
	ConsumptionID string     `json:"consumption_id"`
	UserID        string     `json:"user_id"`
	TaskID        string     `json:"task_id"`
	Credits       int64      `json:"credits"`
	Status        string     `json:"status"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
