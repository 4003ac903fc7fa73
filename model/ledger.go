package model

import "time"

// Reference types for ledger entries. Every wallet mutation records one
// of these so balance history can be reconciled against the record that
// caused it.
const (
	RefPurchase        = "purchase"
	RefRenderSpend     = "render_spend"
	RefRenderRefund    = "render_refund"
	RefBatchUpfront    = "batch_upfront"
	RefBatchRefund     = "batch_refund"
	RefWelcomeBonus    = "welcome_bonus"
	RefAdminAdjustment = "admin_adjustment"
)

// LedgerEntry is one append-only row in the wallet audit trail. Deltas
// are signed: spends are negative, credits positive.
type LedgerEntry struct {
	ID             int64     `json:"-"`
	EntryID        string    `json:"entry_id"`
	UserID         string    `json:"user_id"`
	DeltaPermanent int64     `json:"delta_permanent"`
	DeltaBonus     int64     `json:"delta_bonus"`
	Reason         string    `json:"reason"`
	RefType        string    `json:"ref_type"`
	RefID          string    `json:"ref_id"`
	CreatedAt      time.Time `json:"created_at"`
}
