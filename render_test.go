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
	"github.com/stretchr/testify/assert"

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/internal/grsai"
	"github.com/getreel/reel/model"
)

func testTaskRows(taskID, batchID, status, providerRef string) *sqlmock.Rows {
	var batch interface{}
	if batchID != "" {
		batch = batchID
	}
	return sqlmock.NewRows([]string{"task_id", "user_id", "batch_id", "model_id", "provider_ref", "consumption_id", "status", "progress", "video_url", "error_message", "failure_reason", "created_at", "completed_at"}).
		AddRow(taskID, "usr_1", batch, "sora-std", providerRef, "con_1", status, 0, nil, nil, nil, time.Now(), nil)
}

func testConsumptionRows(id, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"consumption_id", "user_id", "task_id", "credits", "status", "refunded_at", "created_at"}).
		AddRow(id, "usr_1", "tsk_1", int64(10), status, nil, time.Now())
}

func TestStartRender_Succeeds(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)
	service.provider = stubProvider{submitRef: "job_9"}

	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id =").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 100, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id = (.+) FOR UPDATE").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 100, 0))
	mock.ExpectQuery("UPDATE reel.wallets").
		WithArgs("usr_1", int64(10), int64(0)).
		WillReturnRows(testWalletRows("usr_1", 90, 0))
	mock.ExpectExec("INSERT INTO reel.consumptions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO reel.wallet_ledger").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO reel.render_tasks").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE reel.render_tasks").
		WillReturnResult(sqlmock.NewResult(1, 1))

	task, wallet, err := service.StartRender(context.Background(), StartRenderParams{
		UserID:  "usr_1",
		ModelID: "sora-std",
		Prompt:  "a red fox at dawn",
	})
	assert.NoError(t, err)
	assert.Equal(t, model.TaskProcessing, task.Status)
	assert.Equal(t, "job_9", task.ProviderRef)
	assert.Equal(t, int64(90), wallet.PermanentCredits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStartRender_UnknownModel(t *testing.T) {
	service, _, err := newTestReel()
	assert.NoError(t, err)

	_, _, err = service.StartRender(context.Background(), StartRenderParams{
		UserID:  "usr_1",
		ModelID: "no-such-model",
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestStartRender_PlanNotAllowed(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)

	rows := sqlmock.NewRows([]string{"wallet_id", "user_id", "plan_id", "permanent_credits", "bonus_credits", "bonus_expires_at", "created_at", "updated_at"}).
		AddRow("wal_1", "usr_1", "free", int64(1000), int64(0), nil, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id =").
		WithArgs("usr_1").
		WillReturnRows(rows)

	_, _, err = service.StartRender(context.Background(), StartRenderParams{
		UserID:  "usr_1",
		ModelID: "sora-pro",
	})
	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, apiErr.Code)
}

func TestStartRender_SubmitFailureRefunds(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)
	service.provider = stubProvider{submitErr: assert.AnError}

	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id =").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 100, 0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM reel.wallets WHERE user_id = (.+) FOR UPDATE").
		WithArgs("usr_1").
		WillReturnRows(testWalletRows("usr_1", 100, 0))
	mock.ExpectQuery("UPDATE reel.wallets").
		WillReturnRows(testWalletRows("usr_1", 90, 0))
	mock.ExpectExec("INSERT INTO reel.consumptions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO reel.wallet_ledger").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO reel.render_tasks").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// submit fails: task is failed and the consumption refunded
	mock.ExpectQuery("UPDATE reel.render_tasks").
		WillReturnRows(testTaskRows("tsk_1", "", model.TaskFailed, ""))
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE reel.consumptions").
		WillReturnRows(testConsumptionRows("con_1", model.ConsumptionRefunded))
	mock.ExpectQuery("UPDATE reel.wallets").
		WillReturnRows(testWalletRows("usr_1", 100, 0))
	mock.ExpectExec("INSERT INTO reel.wallet_ledger").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, _, err = service.StartRender(context.Background(), StartRenderParams{
		UserID:  "usr_1",
		ModelID: "sora-std",
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceRenderTask_FailedRefundsOnce(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)
	service.provider = stubProvider{poll: &grsai.PollResult{Status: grsai.StatusFailed, ErrorMessage: "render failed"}}

	mock.ExpectQuery("SELECT .* FROM reel.render_tasks WHERE task_id =").
		WithArgs("tsk_1").
		WillReturnRows(testTaskRows("tsk_1", "", model.TaskProcessing, "job_9"))
	mock.ExpectQuery("UPDATE reel.render_tasks").
		WillReturnRows(testTaskRows("tsk_1", "", model.TaskFailed, "job_9"))
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE reel.consumptions").
		WillReturnRows(testConsumptionRows("con_1", model.ConsumptionRefunded))
	mock.ExpectQuery("UPDATE reel.wallets").
		WillReturnRows(testWalletRows("usr_1", 100, 0))
	mock.ExpectExec("INSERT INTO reel.wallet_ledger").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	task, err := service.AdvanceRenderTask(context.Background(), "tsk_1")
	assert.NoError(t, err)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceRenderTask_AlreadyTerminalNoRefund(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)
	service.provider = stubProvider{poll: &grsai.PollResult{Status: grsai.StatusFailed, ErrorMessage: "render failed"}}

	mock.ExpectQuery("SELECT .* FROM reel.render_tasks WHERE task_id =").
		WithArgs("tsk_1").
		WillReturnRows(testTaskRows("tsk_1", "", model.TaskFailed, "job_9"))

	task, err := service.AdvanceRenderTask(context.Background(), "tsk_1")
	assert.NoError(t, err)
	assert.Equal(t, model.TaskFailed, task.Status)
	// terminal task short-circuits: no poll, no writes
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceRenderTask_TransportErrorKeepsTask(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)
	service.provider = stubProvider{pollErr: assert.AnError}

	mock.ExpectQuery("SELECT .* FROM reel.render_tasks WHERE task_id =").
		WithArgs("tsk_1").
		WillReturnRows(testTaskRows("tsk_1", "", model.TaskProcessing, "job_9"))

	task, err := service.AdvanceRenderTask(context.Background(), "tsk_1")
	assert.NoError(t, err)
	assert.Equal(t, model.TaskProcessing, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceRenderTask_LastBatchChildFiresWebhook(t *testing.T) {
	service, mock, err := newTestReel()
	assert.NoError(t, err)
	service.provider = stubProvider{poll: &grsai.PollResult{Status: grsai.StatusSucceeded, Progress: 100, VideoURL: "https://cdn.example.com/v.mp4"}}

	batchRows := func(completedAt interface{}) *sqlmock.Rows {
		return sqlmock.NewRows([]string{"batch_id", "user_id", "model_id", "total_count", "succeeded_count", "failed_count", "credits_spent", "webhook_url", "webhook_secret", "webhook_status", "webhook_attempts", "webhook_last_error", "webhook_last_sent_at", "created_at", "completed_at"}).
			AddRow("bat_1", "usr_1", "sora-std", 3, 2, 1, int64(30), nil, nil, model.WebhookUnset, 0, nil, nil, time.Now(), completedAt)
	}

	mock.ExpectQuery("SELECT .* FROM reel.render_tasks WHERE task_id =").
		WithArgs("tsk_3").
		WillReturnRows(testTaskRows("tsk_3", "bat_1", model.TaskProcessing, "job_9"))
	mock.ExpectQuery("UPDATE reel.render_tasks").
		WillReturnRows(testTaskRows("tsk_3", "bat_1", model.TaskSucceeded, "job_9"))
	mock.ExpectQuery("UPDATE reel.batch_jobs").
		WithArgs("bat_1").
		WillReturnRows(batchRows(nil))
	mock.ExpectQuery("UPDATE reel.batch_jobs").
		WithArgs("bat_1").
		WillReturnRows(batchRows(time.Now()))

	task, err := service.AdvanceRenderTask(context.Background(), "tsk_3")
	assert.NoError(t, err)
	assert.Equal(t, model.TaskSucceeded, task.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
