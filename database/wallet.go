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
	"time"

	"github.com/lib/pq"

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/model"
)

const walletColumns = `wallet_id, user_id, plan_id, permanent_credits, bonus_credits, bonus_expires_at, created_at, updated_at`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWallet(row rowScanner) (*model.Wallet, error) {
	wallet := &model.Wallet{}
	var bonusExpiresAt sql.NullTime
	err := row.Scan(
		&wallet.WalletID,
		&wallet.UserID,
		&wallet.PlanID,
		&wallet.PermanentCredits,
		&wallet.BonusCredits,
		&bonusExpiresAt,
		&wallet.CreatedAt,
		&wallet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if bonusExpiresAt.Valid {
		wallet.BonusExpiresAt = &bonusExpiresAt.Time
	}
	return wallet, nil
}

func insertLedgerEntry(ctx context.Context, tx *sql.Tx, entry model.LedgerEntry) error {
	entry.EntryID = model.GenerateUUIDWithSuffix("led")
	_, err := tx.ExecContext(ctx, `
		INSERT INTO reel.wallet_ledger (entry_id, user_id, delta_permanent, delta_bonus, reason, ref_type, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.EntryID, entry.UserID, entry.DeltaPermanent, entry.DeltaBonus, entry.Reason, entry.RefType, entry.RefID)
	return err
}

// GetWalletByUserID retrieves a wallet by its owning user.
func (d Datasource) GetWalletByUserID(ctx context.Context, userID string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM reel.wallets
		WHERE user_id = $1
	`, userID)

	wallet, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Wallet not found", userID)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallet", err)
	}
	return wallet, nil
}

// CreditWallet applies a signed balance change and writes the matching
// ledger entry in one transaction. The wallet is created on first
// credit. A non-empty planID moves the wallet onto that plan; an empty
// one leaves the plan untouched.
func (d Datasource) CreditWallet(ctx context.Context, userID string, deltaPermanent, deltaBonus int64, bonusExpiresAt *time.Time, planID string, entry model.LedgerEntry) (*model.Wallet, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	wallet, err := creditWalletTx(ctx, tx, userID, deltaPermanent, deltaBonus, bonusExpiresAt, planID)
	if err != nil {
		return nil, err
	}

	entry.UserID = userID
	entry.DeltaPermanent = deltaPermanent
	entry.DeltaBonus = deltaBonus
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write ledger entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit wallet credit", err)
	}
	return wallet, nil
}

func creditWalletTx(ctx context.Context, tx *sql.Tx, userID string, deltaPermanent, deltaBonus int64, bonusExpiresAt *time.Time, planID string) (*model.Wallet, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO reel.wallets (wallet_id, user_id, plan_id, permanent_credits, bonus_credits, bonus_expires_at)
		VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'free'), $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			permanent_credits = reel.wallets.permanent_credits + EXCLUDED.permanent_credits,
			bonus_credits = reel.wallets.bonus_credits + EXCLUDED.bonus_credits,
			bonus_expires_at = COALESCE(EXCLUDED.bonus_expires_at, reel.wallets.bonus_expires_at),
			plan_id = COALESCE(NULLIF($3, ''), reel.wallets.plan_id),
			updated_at = NOW()
		RETURNING `+walletColumns+`
	`, model.GenerateUUIDWithSuffix("wal"), userID, planID, deltaPermanent, deltaBonus, bonusExpiresAt)

	wallet, err := scanWallet(row)
	if err != nil {
		if isCheckViolation(err) {
			return nil, apierror.NewAPIError(apierror.ErrInsufficientCredits, "Adjustment would drive balance below zero", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to credit wallet", err)
	}
	return wallet, nil
}

// DeductForRender is the render cost gate: it enforces usage caps and
// deducts the model cost, bonus first, in one transaction. Either every
// step applies or none does, so two concurrent spends can never both
// pass the balance check.
func (d Datasource) DeductForRender(ctx context.Context, params DeductParams) (*model.Wallet, *model.Consumption, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := enforceUsageCaps(ctx, tx, params); err != nil {
		return nil, nil, err
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM reel.wallets
		WHERE user_id = $1
		FOR UPDATE
	`, params.UserID)
	wallet, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apierror.NewAPIError(apierror.ErrInsufficientCredits, "Insufficient credits", params.UserID)
		}
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock wallet", err)
	}

	fromBonus, fromPermanent, ok := wallet.SplitDeduction(params.Cost, time.Now())
	if !ok {
		return nil, nil, apierror.NewAPIError(apierror.ErrInsufficientCredits, "Insufficient credits", map[string]interface{}{
			"cost":      params.Cost,
			"spendable": wallet.Spendable(time.Now()),
		})
	}

	row = tx.QueryRowContext(ctx, `
		UPDATE reel.wallets
		SET permanent_credits = permanent_credits - $2,
			bonus_credits = bonus_credits - $3,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING `+walletColumns+`
	`, params.UserID, fromPermanent, fromBonus)
	wallet, err = scanWallet(row)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to deduct wallet", err)
	}

	cons := &model.Consumption{
		ConsumptionID: model.GenerateUUIDWithSuffix("con"),
		UserID:        params.UserID,
		TaskID:        params.TaskID,
		Credits:       params.Cost,
		Status:        model.ConsumptionCompleted,
		CreatedAt:     time.Now(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reel.consumptions (consumption_id, user_id, task_id, credits, status)
		VALUES ($1, $2, $3, $4, $5)
	`, cons.ConsumptionID, cons.UserID, cons.TaskID, cons.Credits, cons.Status)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record consumption", err)
	}

	refType := params.RefType
	if refType == "" {
		refType = model.RefRenderSpend
	}
	entry := model.LedgerEntry{
		UserID:         params.UserID,
		DeltaPermanent: -fromPermanent,
		DeltaBonus:     -fromBonus,
		Reason:         params.Reason,
		RefType:        refType,
		RefID:          cons.ConsumptionID,
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write ledger entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit render deduction", err)
	}
	return wallet, cons, nil
}

// enforceUsageCaps bumps the daily and weekly counters for every scope
// key inside the caller's transaction and fails when any counter passes
// its cap. Counting user, device and ip scopes together resists simple
// multi-accounting.
func enforceUsageCaps(ctx context.Context, tx *sql.Tx, params DeductParams) error {
	type window struct {
		kind  string
		start string
		cap   int
	}
	windows := []window{
		{kind: "day", start: "CURRENT_DATE", cap: params.DailyCap},
		{kind: "week", start: "date_trunc('week', CURRENT_DATE)::date", cap: params.WeeklyCap},
	}

	for _, w := range windows {
		if w.cap <= 0 {
			continue
		}
		for _, scope := range params.ScopeKeys {
			if scope == "" {
				continue
			}
			var count int
			err := tx.QueryRowContext(ctx, `
				INSERT INTO reel.usage_counters (scope_key, model_id, window_kind, window_start, count)
				VALUES ($1, $2, $3, `+w.start+`, 1)
				ON CONFLICT (scope_key, model_id, window_kind, window_start)
				DO UPDATE SET count = reel.usage_counters.count + 1
				RETURNING count
			`, scope, params.ModelID, w.kind).Scan(&count)
			if err != nil {
				return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update usage counter", err)
			}
			if count > w.cap {
				return apierror.NewAPIError(apierror.ErrQuotaExceeded, "Render quota exceeded", map[string]interface{}{
					"scope":  scope,
					"window": w.kind,
					"cap":    w.cap,
				})
			}
		}
	}
	return nil
}

// GrantWelcomeBonus credits the one-time signup bonus. The ledger's
// partial unique index on welcome_bonus entries makes the grant
// at-most-once per user; a replay returns the wallet unchanged with
// granted=false.
func (d Datasource) GrantWelcomeBonus(ctx context.Context, userID string, credits int64, expiresAt time.Time) (*model.Wallet, bool, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reel.wallet_ledger (entry_id, user_id, delta_permanent, delta_bonus, reason, ref_type, ref_id)
		VALUES ($1, $2, 0, $3, 'welcome bonus', $4, $2)
		ON CONFLICT (ref_type, ref_id) WHERE ref_type = 'welcome_bonus' DO NOTHING
	`, model.GenerateUUIDWithSuffix("led"), userID, credits, model.RefWelcomeBonus)
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to write ledger entry", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check ledger write", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		wallet, err := d.GetWalletByUserID(ctx, userID)
		if err != nil {
			return nil, false, err
		}
		return wallet, false, nil
	}

	wallet, err := creditWalletTx(ctx, tx, userID, 0, credits, &expiresAt, "")
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit welcome bonus", err)
	}
	return wallet, true, nil
}

func isCheckViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23514"
	}
	return false
}
