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

package database

import (
	"context"

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/model"
)

// GetLegacyMismatches reports wallets whose legacy single-balance field
// disagrees with the sum of the dual balances. Only wallets that carry
// a non-zero legacy balance are compared; post-migration wallets sit at
// the column default of zero and are not legacy drift. Read-only;
// discrepancies are surfaced, never corrected here. Expired bonus still
// counts toward the wallet total because the legacy field never modeled
// expiry.
func (d Datasource) GetLegacyMismatches(ctx context.Context, limit int) ([]model.LegacyMismatch, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT user_id, legacy_credits, permanent_credits + bonus_credits AS wallet_total,
			(permanent_credits + bonus_credits) - legacy_credits AS diff
		FROM reel.wallets
		WHERE legacy_credits <> 0
			AND legacy_credits <> permanent_credits + bonus_credits
		ORDER BY ABS((permanent_credits + bonus_credits) - legacy_credits) DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to run reconciliation", err)
	}
	defer rows.Close()

	mismatches := []model.LegacyMismatch{}
	for rows.Next() {
		m := model.LegacyMismatch{}
		if err := rows.Scan(&m.UserID, &m.LegacyCredits, &m.WalletTotal, &m.Diff); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reconciliation row", err)
		}
		mismatches = append(mismatches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read reconciliation rows", err)
	}
	return mismatches, nil
}
