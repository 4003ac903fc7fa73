package model

import (
	"time"
)

// Wallet is the dual-balance spend account for a single user. Permanent
// credits never expire; bonus credits carry an expiry timestamp and are
// consumed before permanent credits.
type Wallet struct {
	ID               int64      `json:"-"`
	WalletID         string     `json:"wallet_id"`
	UserID           string     `json:"user_id"`
	PlanID           string     `json:"plan_id"`
	PermanentCredits int64      `json:"permanent_credits"`
	BonusCredits     int64      `json:"bonus_credits"`
	BonusExpiresAt   *time.Time `json:"bonus_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// EffectiveBonus returns the spendable bonus balance at the given time.
// Expired bonus credits contribute nothing even while the stored column
// is still non-zero.
func (w *Wallet) EffectiveBonus(now time.Time) int64 {
	if w.BonusExpiresAt == nil {
		return w.BonusCredits
	}
	if w.BonusExpiresAt.After(now) {
		return w.BonusCredits
	}
	return 0
}

// Spendable returns the total balance available for deduction at the
// given time.
func (w *Wallet) Spendable(now time.Time) int64 {
	return w.PermanentCredits + w.EffectiveBonus(now)
}

// SplitDeduction computes how a cost splits across the two balances,
// bonus first, permanent for the remainder. The second return value is
// false when the wallet cannot cover the cost; no partial split is ever
// returned.
func (w *Wallet) SplitDeduction(cost int64, now time.Time) (fromBonus, fromPermanent int64, ok bool) {
	if cost <= 0 {
		return 0, 0, false
	}
	bonus := w.EffectiveBonus(now)
	if bonus+w.PermanentCredits < cost {
		return 0, 0, false
	}
	fromBonus = cost
	if bonus < cost {
		fromBonus = bonus
	}
	fromPermanent = cost - fromBonus
	return fromBonus, fromPermanent, true
}
