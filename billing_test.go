/*
Copyright 2024 Reel Authors.

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

package reel

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/internal/stripepay"
	"github.com/getreel/reel/model"
)

func testRechargeRows(paymentID, status string, credits int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"recharge_id", "user_id", "amount", "credits", "payment_method", "payment_id", "status", "completed_at", "created_at"}).
		AddRow("rch_1", "usr_1", "39.00", credits, "stripe", paymentID, status, nil, time.Now())
}

func testWalletRows(userID string, permanent, bonus int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"wallet_id", "user_id", "plan_id", "permanent_credits", "bonus_credits", "bonus_expires_at", "created_at", "updated_at"}).
		AddRow("wal_1", userID, "creator", permanent, bonus, nil, time.Now(), time.Now())
}

func TestFinalizePayment_Applies(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)

	service.payments = stubVerifier{status: &stripepay.PaymentStatus{
		SessionID: "cs_test_1",
		Paid:      true,
		Amount:    decimal.NewFromFloat(39.00),
	}}

	// pending row registered at checkout time
	mock.ExpectQuery("SELECT .* FROM reel.recharges WHERE payment_id =").
		WithArgs("cs_test_1").
		WillReturnRows(testRechargeRows("cs_test_1", model.RechargePending, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM reel.recharges WHERE payment_id = (.+) FOR UPDATE").
		WithArgs("cs_test_1").
		WillReturnRows(testRechargeRows("cs_test_1", model.RechargePending, 0))
	mock.ExpectQuery("UPDATE reel.recharges").
		WithArgs("cs_test_1", model.RechargeCompleted, int64(650)).
		WillReturnRows(testRechargeRows("cs_test_1", model.RechargeCompleted, 650))
	mock.ExpectQuery("INSERT INTO reel.wallets").
		WillReturnRows(testWalletRows("usr_1", 500, 150))
	mock.ExpectExec("INSERT INTO reel.wallet_ledger").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	recharge, wallet, err := service.FinalizePayment(context.Background(), "cs_test_1")
	assert.NoError(t, err)
	assert.Equal(t, model.RechargeCompleted, recharge.Status)
	assert.Equal(t, int64(500), wallet.PermanentCredits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizePayment_Replay(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)

	service.payments = stubVerifier{status: &stripepay.PaymentStatus{
		SessionID: "cs_test_1",
		Paid:      true,
		Amount:    decimal.NewFromFloat(39.00),
	}}

	mock.ExpectQuery("SELECT .* FROM reel.recharges WHERE payment_id =").
		WithArgs("cs_test_1").
		WillReturnRows(testRechargeRows("cs_test_1", model.RechargeCompleted, 650))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM reel.recharges WHERE payment_id = (.+) FOR UPDATE").
		WithArgs("cs_test_1").
		WillReturnRows(testRechargeRows("cs_test_1", model.RechargeCompleted, 650))
	mock.ExpectRollback()
	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id =").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 500, 150))

	recharge, wallet, err := service.FinalizePayment(context.Background(), "cs_test_1")
	assert.NoError(t, err)
	assert.Equal(t, model.RechargeCompleted, recharge.Status)
	assert.Equal(t, int64(500), wallet.PermanentCredits)
	// no UPDATE, no ledger write on replay
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizePayment_NotPaid(t *testing.T) {
	service, _, err := newTestReel()
	assert.NoError(t, err)

	service.payments = stubVerifier{status: &stripepay.PaymentStatus{
		SessionID: "cs_test_1",
		Paid:      false,
	}}

	_, _, err = service.FinalizePayment(context.Background(), "cs_test_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrPaymentNotConfirmed, apiErr.Code)
}

func TestFinalizePayment_UnknownTier(t *testing.T) {
	service, _, err := newTestReel()
	assert.NoError(t, err)

	service.payments = stubVerifier{status: &stripepay.PaymentStatus{
		SessionID: "cs_test_1",
		Paid:      true,
		Amount:    decimal.NewFromFloat(45.00),
	}}

	_, _, err = service.FinalizePayment(context.Background(), "cs_test_1")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrUnknownTier, apiErr.Code)
}

func TestFinalizePayment_NoCheckoutRecord(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)

	service.payments = stubVerifier{status: &stripepay.PaymentStatus{
		SessionID: "cs_test_unregistered",
		Paid:      true,
		Amount:    decimal.NewFromFloat(39.00),
	}}

	mock.ExpectQuery("SELECT .* FROM reel.recharges WHERE payment_id =").
		WithArgs("cs_test_unregistered").
		WillReturnRows(sqlmock.NewRows([]string{"recharge_id"}))

	_, _, err = service.FinalizePayment(context.Background(), "cs_test_unregistered")
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	// a paid session nobody registered credits nothing
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginCheckout(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)

	mock.ExpectExec("INSERT INTO reel.recharges").
		WillReturnResult(sqlmock.NewResult(1, 1))

	recharge, err := service.BeginCheckout(context.Background(), "usr_1", "cs_test_1", decimal.NewFromFloat(39.00))
	assert.NoError(t, err)
	assert.Equal(t, "usr_1", recharge.UserID)
	assert.Equal(t, model.RechargePending, recharge.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
