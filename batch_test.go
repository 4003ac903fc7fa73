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

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/getreel/reel/internal/apierror"
)

func TestCreateBatch_ChargesUpfront(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)
	service.provider = stubProvider{submitRef: "job_1"}

	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id =").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 100, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id = (.+) FOR UPDATE").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 100, 0))
	// 2 prompts at 10 credits each
	mock.ExpectQuery("UPDATE reel.wallets").
		WithArgs("usr_1", int64(20), int64(0)).
		WillReturnRows(testWalletRows("usr_1", 80, 0))
	mock.ExpectExec("INSERT INTO reel.consumptions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO reel.wallet_ledger").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO reel.batch_jobs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO reel.render_tasks").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE reel.render_tasks").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	batch, err := service.CreateBatch(context.Background(), CreateBatchParams{
		UserID:  "usr_1",
		ModelID: "sora-std",
		Prompts: []string{"city at night", "forest in rain"},
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, batch.TotalCount)
	assert.Equal(t, int64(20), batch.CreditsSpent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatch_EmptyPrompts(t *testing.T) {
	service, _, err := newTestReel()
	assert.NoError(t, err)

	_, err = service.CreateBatch(context.Background(), CreateBatchParams{
		UserID:  "usr_1",
		ModelID: "sora-std",
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)
}

func TestCreateBatch_InsufficientCredits(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)

	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id =").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 15, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id = (.+) FOR UPDATE").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 15, 0))
	mock.ExpectRollback()

	_, err = service.CreateBatch(context.Background(), CreateBatchParams{
		UserID:  "usr_1",
		ModelID: "sora-std",
		Prompts: []string{"a", "b"},
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrInsufficientCredits, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
