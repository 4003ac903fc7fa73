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
	"database/sql"
	"errors"

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/model"
)

const consumptionColumns = `consumption_id, user_id, task_id, credits, status, refunded_at, created_at`

func scanConsumption(row rowScanner) (*model.Consumption, error) {
	cons := &model.Consumption{}
	var refundedAt sql.NullTime
	err := row.Scan(
		&cons.ConsumptionID,
		&cons.UserID,
		&cons.TaskID,
		&cons.Credits,
		&cons.Status,
		&refundedAt,
		&cons.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if refundedAt.Valid {
		cons.RefundedAt = &refundedAt.Time
	}
	return cons, nil
}

// GetConsumption retrieves a consumption record by ID.
func (d Datasource) GetConsumption(ctx context.Context, consumptionID string) (*model.Consumption, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+consumptionColumns+`
		FROM reel.consumptions
		WHERE consumption_id = $1
	`, consumptionID)

	cons, err := scanConsumption(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Consumption not found", consumptionID)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve consumption", err)
	}
	return cons, nil
}

// RefundConsumption flips a completed consumption to refunded and
// returns its credits to the wallet's permanent bucket. The status flip
// is a conditional update, so concurrent refunds of the same
// consumption settle to exactly one credit.
func (d Datasource) RefundConsumption(ctx context.Context, consumptionID, refType, reason string) (*model.Consumption, *model.Wallet, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
		UPDATE reel.consumptions
		SET status = $2, refunded_at = NOW()
		WHERE consumption_id = $1 AND status = $3
		RETURNING `+consumptionColumns+`
	`, consumptionID, model.ConsumptionRefunded, model.ConsumptionCompleted)

	cons, err := scanConsumption(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, classifyRefundMiss(ctx, tx, consumptionID)
		}
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to refund consumption", err)
	}

	row = tx.QueryRowContext(ctx, `
		UPDATE reel.wallets
		SET permanent_credits = permanent_credits + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+walletColumns+`
	`, cons.UserID, cons.Credits)
	wallet, err := scanWallet(row)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to credit refund", err)
	}

	if refType == "" {
		refType = model.RefRenderRefund
	}
	entry := model.LedgerEntry{
		UserID:         cons.UserID,
		DeltaPermanent: cons.Credits,
		DeltaBonus:     0,
		Reason:         reason,
		RefType:        refType,
		RefID:          cons.ConsumptionID,
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write ledger entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit refund", err)
	}
	return cons, wallet, nil
}

func classifyRefundMiss(ctx context.Context, tx *sql.Tx, consumptionID string) error {
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM reel.consumptions WHERE consumption_id = $1
	`, consumptionID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apierror.NewAPIError(apierror.ErrNotFound, "Consumption not found", consumptionID)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check consumption status", err)
	}
	return apierror.NewAPIError(apierror.ErrAlreadyRefunded, "Consumption already refunded", consumptionID)
}
