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
package reel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/getreel/reel/config"
	"github.com/getreel/reel/internal/notification"
	"github.com/getreel/reel/model"

	"github.com/hibiken/asynq"
)

// webhookHTTPClient delivers batch webhooks. The timeout is applied per
// attempt from config at delivery time.
var webhookHTTPClient = &http.Client{}

// batchStatus summarizes a finished batch for its webhook payload.
func batchStatus(batch *model.BatchJob) string {
	if batch.FailedCount == 0 {
		return "completed"
	}
	if batch.SucceededCount == 0 {
		return "failed"
	}
	return "partial"
}

// NotifyBatchComplete enqueues the completion webhook for a finished
// batch. Batches without a webhook URL are skipped silently; delivery
// failure never propagates back into batch completion.
func (r *Reel) NotifyBatchComplete(ctx context.Context, batch *model.BatchJob) error {
	if batch.WebhookURL == "" {
		return nil
	}
	return r.queue.queueBatchWebhook(batch.BatchID)
}

// ProcessBatchWebhook is the asynq handler for batch webhook delivery
// tasks. It reloads the batch, attempts delivery, and records the
// outcome on the batch row. The handler itself never fails the task;
// retries are bounded inside deliverBatchWebhook.
func (r *Reel) ProcessBatchWebhook(ctx context.Context, task *asynq.Task) error {
	var payload batchWebhookPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		notification.NotifyError(err)
		return nil
	}

	batch, err := r.datasource.GetBatchJob(ctx, payload.BatchID)
	if err != nil {
		notification.NotifyError(err)
		return nil
	}

	delivered, attempts, lastErr := deliverBatchWebhook(batch)
	status := model.WebhookSent
	lastErrMsg := ""
	if !delivered {
		status = model.WebhookFailed
		if lastErr != nil {
			lastErrMsg = lastErr.Error()
		}
	}
	if err := r.datasource.UpdateBatchWebhookDelivery(ctx, batch.BatchID, status, attempts, lastErrMsg); err != nil {
		notification.NotifyError(err)
	}

	logrus.WithFields(logrus.Fields{
		"batch_id":  batch.BatchID,
		"delivered": delivered,
		"attempts":  attempts,
	}).Info("batch webhook processed")
	return nil
}

// deliverBatchWebhook POSTs the batch summary to the customer's URL.
// The first attempt fires immediately; retries wait with growing delays
// (500ms then 1.5s at the default backoff). Any 2xx stops the loop.
// Returns whether a delivery landed and how many attempts were made.
// No URL means no HTTP at all.
func deliverBatchWebhook(batch *model.BatchJob) (bool, int, error) {
	if batch.WebhookURL == "" {
		return false, 0, nil
	}

	cfg, err := config.Fetch()
	if err != nil {
		return false, 0, err
	}
	maxTries := cfg.Queue.WebhookMaxTries
	if maxTries <= 0 {
		maxTries = 3
	}
	backoff := time.Duration(cfg.Queue.WebhookBackoffMs) * time.Millisecond
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	timeout := time.Duration(cfg.Queue.WebhookTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	summary := model.BatchSummary{
		BatchID:      batch.BatchID,
		UserID:       batch.UserID,
		Status:       batchStatus(batch),
		TotalCount:   batch.TotalCount,
		SuccessCount: batch.SucceededCount,
		FailedCount:  batch.FailedCount,
		CreditsSpent: batch.CreditsSpent,
		Timestamp:    time.Now().Unix(),
	}
	body, err := json.Marshal(summary)
	if err != nil {
		return false, 0, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxTries; attempt++ {
		if attempt > 1 {
			// retry delay = backoff * (2^retries - 1)
			time.Sleep(backoff * time.Duration((1<<(attempt-1))-1))
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, batch.WebhookURL, bytes.NewReader(body))
		if err != nil {
			cancel()
			return false, attempt - 1, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-batch-id", batch.BatchID)
		if batch.WebhookSecret != "" {
			req.Header.Set("x-webhook-signature", signWebhookBody(batch.WebhookSecret, body))
		}

		resp, err := webhookHTTPClient.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		statusCode := resp.StatusCode
		resp.Body.Close()
		if statusCode >= 200 && statusCode < 300 {
			return true, attempt, nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", statusCode)
	}
	return false, maxTries, lastErr
}

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
