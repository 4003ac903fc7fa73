package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RechargePending   = "pending"
	RechargeCompleted = "completed"
	RechargeFailed    = "failed"
)

// Recharge records one payment attempt. PaymentID is the payment
// processor's session or intent id and doubles as the idempotency key
// for finalization: it is unique, and finalizing an already-completed
// recharge is a no-op.
type Recharge struct {
	ID            int64           `json:"-"`
	RechargeID    string          `json:"recharge_id"`
	UserID        string          `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Credits       int64           `json:"credits"`
	PaymentMethod string          `json:"payment_method"`
	PaymentID     string          `json:"payment_id"`
	Status        string          `json:"status"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
