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
	"fmt"
	"log"
	"time"

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/model"
)

const ledgerColumns = `entry_id, user_id, delta_permanent, delta_bonus, reason, ref_type, ref_id, created_at`

func scanLedgerEntries(rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}) ([]model.LedgerEntry, error) {
	entries := []model.LedgerEntry{}
	for rows.Next() {
		entry := model.LedgerEntry{}
		err := rows.Scan(
			&entry.EntryID,
			&entry.UserID,
			&entry.DeltaPermanent,
			&entry.DeltaBonus,
			&entry.Reason,
			&entry.RefType,
			&entry.RefID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetLedgerEntries returns a page of a user's ledger, newest first.
// Pages are cached briefly; the ledger is append-only, so a stale page
// only lags behind new entries.
func (d Datasource) GetLedgerEntries(ctx context.Context, userID string, limit, offset int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	cacheKey := fmt.Sprintf("ledger:%s:%d:%d", userID, limit, offset)
	var cached []model.LedgerEntry
	if d.Cache != nil {
		if err := d.Cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM reel.wallet_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, entry_id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entries", err)
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entries", err)
	}

	if d.Cache != nil && len(entries) > 0 {
		if err := d.Cache.Set(ctx, cacheKey, entries, 1*time.Minute); err != nil {
			log.Printf("Failed to cache ledger entries: %v", err)
		}
	}
	return entries, nil
}

// GetLedgerEntriesByRef returns every entry written against a
// reference, e.g. all movements caused by one recharge or consumption.
func (d Datasource) GetLedgerEntriesByRef(ctx context.Context, refType, refID string) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ledgerColumns+`
		FROM reel.wallet_ledger
		WHERE ref_type = $1 AND ref_id = $2
		ORDER BY created_at ASC
	`, refType, refID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entries", err)
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entries", err)
	}
	return entries, nil
}
