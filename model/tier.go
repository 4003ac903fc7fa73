/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import "github.com/shopspring/decimal"

// Tier is a named purchase package mapping a price to a credit grant.
type Tier struct {
	PlanID           string          `json:"plan_id"`
	Amount           decimal.Decimal `json:"amount"`
	PermanentCredits int64           `json:"permanent_credits"`
	BonusCredits     int64           `json:"bonus_credits"`
	BonusExpiresDays int             `json:"bonus_expires_days"`
}

// TierTolerance absorbs processor fees and FX drift when matching a
// paid amount to a tier. Tier prices must be spaced more than twice
// this apart so adjacent tiers cannot both match.
var TierTolerance = decimal.NewFromFloat(0.50)

// MatchTier maps a paid amount to the tier whose price it falls within
// tolerance of. Returns nil when no tier matches; unmatched amounts are
// surfaced for manual handling, never defaulted.
func MatchTier(amount decimal.Decimal, tiers []Tier) *Tier {
	for i := range tiers {
		diff := amount.Sub(tiers[i].Amount).Abs()
		if diff.LessThanOrEqual(TierTolerance) {
			return &tiers[i]
		}
	}
	return nil
}
