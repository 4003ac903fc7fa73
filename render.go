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
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/getreel/reel/config"
	"github.com/getreel/reel/database"
	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/internal/grsai"
	"github.com/getreel/reel/internal/notification"
	"github.com/getreel/reel/model"
)

var renderTracer = otel.Tracer("reel.render")

const failureReasonSubmit = "SUBMIT_FAILED"

// StartRenderParams carries one render request through the cost gate.
type StartRenderParams struct {
	UserID   string
	ModelID  string
	Prompt   string
	DeviceID string
	IPHash   string
}

// StartRender is the cost gate for a single render: quota counters and
// the bonus-first deduction apply in one transaction, then the task is
// created and submitted to the provider. A submit failure after the
// charge marks the task failed and refunds the consumption.
func (r *Reel) StartRender(ctx context.Context, params StartRenderParams) (*model.RenderTask, *model.Wallet, error) {
	ctx, span := renderTracer.Start(ctx, "StartRender")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, nil, err
	}

	cost := cfg.CostFor(params.ModelID)
	if cost == 0 {
		return nil, nil, apierror.NewAPIError(apierror.ErrNotFound, "Unknown render model", params.ModelID)
	}

	wallet, err := r.datasource.GetWalletByUserID(ctx, params.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if !cfg.PlanAllowed(params.ModelID, wallet.PlanID) {
		return nil, nil, apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Model %s is not available on plan %s", params.ModelID, wallet.PlanID), params.UserID)
	}

	wallet, cons, err := r.datasource.DeductForRender(ctx, database.DeductParams{
		UserID:    params.UserID,
		ModelID:   params.ModelID,
		Cost:      cost,
		ScopeKeys: renderScopeKeys(params.UserID, params.DeviceID, params.IPHash),
		DailyCap:  cfg.Quota.DailyRenderCap,
		WeeklyCap: cfg.Quota.WeeklyRenderCap,
		Reason:    fmt.Sprintf("render %s", params.ModelID),
		RefType:   model.RefRenderSpend,
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	span.AddEvent("Credits deducted", trace.WithAttributes(attribute.Int64("render.cost", cost)))

	task, err := r.datasource.CreateRenderTask(ctx, &model.RenderTask{
		UserID:        params.UserID,
		ModelID:       params.ModelID,
		ConsumptionID: cons.ConsumptionID,
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	providerRef, err := r.provider.Submit(ctx, grsai.SubmitRequest{Model: params.ModelID, Prompt: params.Prompt})
	if err != nil {
		span.RecordError(err)
		r.abortSubmittedTask(ctx, task, cons.ConsumptionID, err)
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to submit render to provider", err)
	}

	if err := r.datasource.MarkRenderTaskSubmitted(ctx, task.TaskID, providerRef); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	task.ProviderRef = providerRef
	task.Status = model.TaskProcessing

	if err := r.queue.queueRenderPoll(task.TaskID, time.Duration(cfg.Queue.PollIntervalSec)*time.Second); err != nil {
		span.RecordError(err)
		notification.NotifyError(err)
	}

	logrus.WithFields(logrus.Fields{
		"task_id":  task.TaskID,
		"user_id":  params.UserID,
		"model_id": params.ModelID,
		"cost":     cost,
	}).Info("render started")
	return task, wallet, nil
}

func renderScopeKeys(userID, deviceID, ipHash string) []string {
	keys := []string{fmt.Sprintf("user:%s", userID)}
	if deviceID != "" {
		keys = append(keys, fmt.Sprintf("device:%s", deviceID))
	}
	if ipHash != "" {
		keys = append(keys, fmt.Sprintf("ip:%s", ipHash))
	}
	return keys
}

// abortSubmittedTask handles a provider submit failure after the charge
// committed: the task is failed and the consumption refunded. Both
// steps are idempotent, so a retry of the same failure is harmless.
func (r *Reel) abortSubmittedTask(ctx context.Context, task *model.RenderTask, consumptionID string, cause error) {
	if _, _, err := r.datasource.FailRenderTask(ctx, task.TaskID, cause.Error(), failureReasonSubmit); err != nil {
		notification.NotifyError(err)
	}
	if _, _, err := r.datasource.RefundConsumption(ctx, consumptionID, model.RefRenderRefund, "provider submit failed"); err != nil {
		notification.NotifyError(err)
	}
}

// AdvanceRenderTask polls the provider for a task and persists whatever
// transition the result implies. Transport errors leave the task
// untouched and reschedule the poll; only a provider verdict moves the
// task to a terminal state. A failed terminal transition refunds the
// spend exactly once.
func (r *Reel) AdvanceRenderTask(ctx context.Context, taskID string) (*model.RenderTask, error) {
	ctx, span := renderTracer.Start(ctx, "AdvanceRenderTask")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	task, err := r.datasource.GetRenderTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if task.IsTerminal() || task.ProviderRef == "" {
		return task, nil
	}

	result, err := r.provider.Poll(ctx, task.ProviderRef)
	if err != nil {
		span.RecordError(err)
		logrus.WithFields(logrus.Fields{"task_id": taskID}).Warn("provider poll failed, will retry")
		if qErr := r.queue.queueRenderPoll(taskID, time.Duration(cfg.Queue.PollIntervalSec)*time.Second); qErr != nil {
			notification.NotifyError(qErr)
		}
		return task, nil
	}

	switch result.Status {
	case grsai.StatusProcessing:
		if err := r.datasource.UpdateRenderTaskProgress(ctx, taskID, result.Progress); err != nil {
			span.RecordError(err)
		}
		if err := r.queue.queueRenderPoll(taskID, time.Duration(cfg.Queue.PollIntervalSec)*time.Second); err != nil {
			notification.NotifyError(err)
		}
		task.Progress = result.Progress
		return task, nil

	case grsai.StatusSucceeded:
		updated, transitioned, err := r.datasource.CompleteRenderTask(ctx, taskID, result.VideoURL)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if transitioned {
			span.AddEvent("Render succeeded", trace.WithAttributes(attribute.String("task.id", taskID)))
			if updated.BatchID != "" {
				r.onBatchChildDone(ctx, updated, true)
			}
		}
		return updated, nil

	case grsai.StatusFailed:
		reason := "PROVIDER_FAILED"
		if result.ErrorMessage == grsai.ErrSucceededWithoutURL {
			reason = grsai.ErrSucceededWithoutURL
		}
		updated, transitioned, err := r.datasource.FailRenderTask(ctx, taskID, result.ErrorMessage, reason)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if transitioned {
			span.AddEvent("Render failed", trace.WithAttributes(attribute.String("task.failure_reason", reason)))
			r.refundFailedTask(ctx, updated)
			if updated.BatchID != "" {
				r.onBatchChildDone(ctx, updated, false)
			}
		}
		return updated, nil
	}
	return task, nil
}

// ProcessRenderPoll is the asynq handler for the poll queue. It advances
// the task one step; follow-up polls are scheduled by AdvanceRenderTask
// itself, so the handler never returns a retryable error for a task that
// is simply still processing.
func (r *Reel) ProcessRenderPoll(ctx context.Context, task *asynq.Task) error {
	var payload renderPollPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}
	if _, err := r.AdvanceRenderTask(ctx, payload.TaskID); err != nil {
		notification.NotifyError(err)
		return err
	}
	return nil
}

// refundFailedTask returns the credits spent on a failed render. Solo
// tasks refund their own consumption; batch children refund the
// per-task share of the batch's upfront charge.
func (r *Reel) refundFailedTask(ctx context.Context, task *model.RenderTask) {
	if task.BatchID == "" {
		if _, _, err := r.datasource.RefundConsumption(ctx, task.ConsumptionID, model.RefRenderRefund, "render failed"); err != nil {
			notification.NotifyError(err)
		}
		return
	}

	batch, err := r.datasource.GetBatchJob(ctx, task.BatchID)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	if batch.TotalCount == 0 {
		return
	}
	perTask := batch.CreditsSpent / int64(batch.TotalCount)
	_, err = r.datasource.CreditWallet(ctx, task.UserID, perTask, 0, nil, "", model.LedgerEntry{
		Reason:  "batch task failed",
		RefType: model.RefBatchRefund,
		RefID:   task.TaskID,
	})
	if err != nil {
		notification.NotifyError(err)
	}
}

// onBatchChildDone records one terminal child and, when it is the last,
// stamps the batch completed and enqueues the completion webhook. The
// stamp is conditional, so exactly one child triggers the webhook.
func (r *Reel) onBatchChildDone(ctx context.Context, task *model.RenderTask, succeeded bool) {
	batch, err := r.datasource.IncrementBatchCounters(ctx, task.BatchID, succeeded)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	if !batch.AllTerminal() {
		return
	}

	batch, won, err := r.datasource.MarkBatchCompleted(ctx, task.BatchID)
	if err != nil {
		notification.NotifyError(err)
		return
	}
	if !won {
		return
	}
	if err := r.NotifyBatchComplete(ctx, batch); err != nil {
		notification.NotifyError(err)
	}
}
