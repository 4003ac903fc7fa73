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
	"fmt"
	"time"

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

var batchTracer = otel.Tracer("reel.batch")

// CreateBatchParams carries an enterprise batch request: one prompt per
// child task, all on the same model, charged upfront.
type CreateBatchParams struct {
	UserID        string
	ModelID       string
	Prompts       []string
	WebhookURL    string
	WebhookSecret string
	DeviceID      string
	IPHash        string
}

// CreateBatch charges cost×count upfront, creates the batch job and its
// child tasks, and submits each child to the provider. Children that
// fail to submit are failed immediately and their share refunded; the
// remaining children proceed.
func (r *Reel) CreateBatch(ctx context.Context, params CreateBatchParams) (*model.BatchJob, error) {
	ctx, span := batchTracer.Start(ctx, "CreateBatch")
	defer span.End()

	if len(params.Prompts) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Batch needs at least one prompt", nil)
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	cost := cfg.CostFor(params.ModelID)
	if cost == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Unknown render model", params.ModelID)
	}

	wallet, err := r.datasource.GetWalletByUserID(ctx, params.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !cfg.PlanAllowed(params.ModelID, wallet.PlanID) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("Model %s is not available on plan %s", params.ModelID, wallet.PlanID), params.UserID)
	}

	total := cost * int64(len(params.Prompts))
	_, cons, err := r.datasource.DeductForRender(ctx, database.DeductParams{
		UserID:    params.UserID,
		ModelID:   params.ModelID,
		Cost:      total,
		ScopeKeys: renderScopeKeys(params.UserID, params.DeviceID, params.IPHash),
		DailyCap:  cfg.Quota.DailyRenderCap,
		WeeklyCap: cfg.Quota.WeeklyRenderCap,
		Reason:    fmt.Sprintf("batch %s x%d", params.ModelID, len(params.Prompts)),
		RefType:   model.RefBatchUpfront,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.AddEvent("Batch charged upfront", trace.WithAttributes(attribute.Int64("batch.credits", total)))

	batch, err := r.datasource.CreateBatchJob(ctx, &model.BatchJob{
		UserID:        params.UserID,
		ModelID:       params.ModelID,
		TotalCount:    len(params.Prompts),
		CreditsSpent:  total,
		WebhookURL:    params.WebhookURL,
		WebhookSecret: params.WebhookSecret,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, prompt := range params.Prompts {
		task, err := r.datasource.CreateRenderTask(ctx, &model.RenderTask{
			UserID:        params.UserID,
			BatchID:       batch.BatchID,
			ModelID:       params.ModelID,
			ConsumptionID: cons.ConsumptionID,
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		providerRef, err := r.provider.Submit(ctx, grsai.SubmitRequest{Model: params.ModelID, Prompt: prompt})
		if err != nil {
			span.RecordError(err)
			if _, transitioned, fErr := r.datasource.FailRenderTask(ctx, task.TaskID, err.Error(), failureReasonSubmit); fErr != nil {
				notification.NotifyError(fErr)
			} else if transitioned {
				task.BatchID = batch.BatchID
				r.refundFailedTask(ctx, task)
				r.onBatchChildDone(ctx, task, false)
			}
			continue
		}
		if err := r.datasource.MarkRenderTaskSubmitted(ctx, task.TaskID, providerRef); err != nil {
			notification.NotifyError(err)
			continue
		}
		if err := r.queue.queueRenderPoll(task.TaskID, time.Duration(cfg.Queue.PollIntervalSec)*time.Second); err != nil {
			notification.NotifyError(err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"batch_id": batch.BatchID,
		"user_id":  params.UserID,
		"model_id": params.ModelID,
		"count":    batch.TotalCount,
		"credits":  total,
	}).Info("batch created")
	return batch, nil
}

// GetBatch retrieves a batch job with its child tasks.
func (r *Reel) GetBatch(ctx context.Context, batchID string) (*model.BatchJob, []*model.RenderTask, error) {
	ctx, span := batchTracer.Start(ctx, "GetBatch")
	defer span.End()

	batch, err := r.datasource.GetBatchJob(ctx, batchID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	tasks, err := r.datasource.GetRenderTasksByBatch(ctx, batchID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	return batch, tasks, nil
}
