package model

// LegacyMismatch is one drift row between the legacy single-balance
// field and the dual-balance wallet. Emitted for human review only;
// nothing auto-corrects these.
type LegacyMismatch struct {
	UserID        string `json:"user_id"`
	LegacyCredits int64  `json:"legacy_credits"`
	WalletTotal   int64  `json:"wallet_total"`
	Diff          int64  `json:"diff"`
}
