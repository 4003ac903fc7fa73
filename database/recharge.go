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
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/model"
)

const rechargeColumns = `recharge_id, user_id, amount, credits, payment_method, payment_id, status, completed_at, created_at`

func scanRecharge(row rowScanner) (*model.Recharge, error) {
	recharge := &model.Recharge{}
	var completedAt sql.NullTime
	err := row.Scan(
		&recharge.RechargeID,
		&recharge.UserID,
		&recharge.Amount,
		&recharge.Credits,
		&recharge.PaymentMethod,
		&recharge.PaymentID,
		&recharge.Status,
		&completedAt,
		&recharge.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		recharge.CompletedAt = &completedAt.Time
	}
	return recharge, nil
}

// CreateRecharge records a pending payment attempt. PaymentID is
// unique; re-creating for the same payment returns the existing row.
func (d Datasource) CreateRecharge(ctx context.Context, recharge *model.Recharge) (*model.Recharge, error) {
	recharge.RechargeID = model.GenerateUUIDWithSuffix("rch")
	recharge.Status = model.RechargePending
	recharge.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO reel.recharges (recharge_id, user_id, amount, credits, payment_method, payment_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, recharge.RechargeID, recharge.UserID, recharge.Amount, recharge.Credits, recharge.PaymentMethod, recharge.PaymentID, recharge.Status)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return d.GetRechargeByPaymentID(ctx, recharge.PaymentID)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create recharge", err)
	}
	return recharge, nil
}

// GetRechargeByPaymentID retrieves a recharge by its payment processor id.
func (d Datasource) GetRechargeByPaymentID(ctx context.Context, paymentID string) (*model.Recharge, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+rechargeColumns+`
		FROM reel.recharges
		WHERE payment_id = $1
	`, paymentID)

	recharge, err := scanRecharge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Recharge not found", paymentID)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve recharge", err)
	}
	return recharge, nil
}

// CompleteRecharge settles a verified payment against its tier. The
// recharge row is locked for the duration, so a double webhook or a
// webhook racing the success-page callback applies the credit exactly
// once. The returned bool reports whether this call applied it.
func (d Datasource) CompleteRecharge(ctx context.Context, paymentID string, tier *model.Tier) (*model.Recharge, *model.Wallet, bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
		SELECT `+rechargeColumns+`
		FROM reel.recharges
		WHERE payment_id = $1
		FOR UPDATE
	`, paymentID)
	recharge, err := scanRecharge(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, false, apierror.NewAPIError(apierror.ErrNotFound, "Recharge not found", paymentID)
		}
		return nil, nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock recharge", err)
	}

	if recharge.Status == model.RechargeCompleted {
		_ = tx.Rollback()
		wallet, err := d.GetWalletByUserID(ctx, recharge.UserID)
		if err != nil {
			return nil, nil, false, err
		}
		return recharge, wallet, false, nil
	}

	totalCredits := tier.PermanentCredits + tier.BonusCredits
	row = tx.QueryRowContext(ctx, `
		UPDATE reel.recharges
		SET status = $2, credits = $3, completed_at = NOW()
		WHERE payment_id = $1
		RETURNING `+rechargeColumns+`
	`, paymentID, model.RechargeCompleted, totalCredits)
	recharge, err = scanRecharge(row)
	if err != nil {
		return nil, nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete recharge", err)
	}

	var bonusExpiresAt *time.Time
	if tier.BonusCredits > 0 && tier.BonusExpiresDays > 0 {
		t := time.Now().AddDate(0, 0, tier.BonusExpiresDays)
		bonusExpiresAt = &t
	}
	wallet, err := creditWalletTx(ctx, tx, recharge.UserID, tier.PermanentCredits, tier.BonusCredits, bonusExpiresAt, tier.PlanID)
	if err != nil {
		return nil, nil, false, err
	}

	entry := model.LedgerEntry{
		UserID:         recharge.UserID,
		DeltaPermanent: tier.PermanentCredits,
		DeltaBonus:     tier.BonusCredits,
		Reason:         fmt.Sprintf("purchase %s", tier.PlanID),
		RefType:        model.RefPurchase,
		RefID:          recharge.RechargeID,
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write ledger entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit recharge", err)
	}
	return recharge, wallet, true, nil
}
