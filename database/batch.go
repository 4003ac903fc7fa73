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

	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/model"
)

const batchColumns = `batch_id, user_id, model_id, total_count, succeeded_count, failed_count, credits_spent, webhook_url, webhook_secret, webhook_status, webhook_attempts, webhook_last_error, webhook_last_sent_at, created_at, completed_at`

func scanBatchJob(row rowScanner) (*model.BatchJob, error) {
	batch := &model.BatchJob{}
	var webhookURL, webhookSecret, webhookLastError sql.NullString
	var webhookLastSentAt, completedAt sql.NullTime
	err := row.Scan(
		&batch.BatchID,
		&batch.UserID,
		&batch.ModelID,
		&batch.TotalCount,
		&batch.SucceededCount,
		&batch.FailedCount,
		&batch.CreditsSpent,
		&webhookURL,
		&webhookSecret,
		&batch.WebhookStatus,
		&batch.WebhookAttempts,
		&webhookLastError,
		&webhookLastSentAt,
		&batch.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	batch.WebhookURL = webhookURL.String
	batch.WebhookSecret = webhookSecret.String
	batch.WebhookLastError = webhookLastError.String
	if webhookLastSentAt.Valid {
		batch.WebhookLastSentAt = &webhookLastSentAt.Time
	}
	if completedAt.Valid {
		batch.CompletedAt = &completedAt.Time
	}
	return batch, nil
}

// CreateBatchJob persists a new batch job.
func (d Datasource) CreateBatchJob(ctx context.Context, batch *model.BatchJob) (*model.BatchJob, error) {
	batch.BatchID = model.GenerateUUIDWithSuffix("bat")
	batch.WebhookStatus = model.WebhookUnset
	batch.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO reel.batch_jobs (batch_id, user_id, model_id, total_count, credits_spent, webhook_url, webhook_secret, webhook_status)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	`, batch.BatchID, batch.UserID, batch.ModelID, batch.TotalCount, batch.CreditsSpent, batch.WebhookURL, batch.WebhookSecret, batch.WebhookStatus)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create batch job", err)
	}
	return batch, nil
}

// GetBatchJob retrieves a batch job by ID.
func (d Datasource) GetBatchJob(ctx context.Context, batchID string) (*model.BatchJob, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+batchColumns+`
		FROM reel.batch_jobs
		WHERE batch_id = $1
	`, batchID)

	batch, err := scanBatchJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Batch job not found", batchID)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batch job", err)
	}
	return batch, nil
}

// IncrementBatchCounters bumps the succeeded or failed counter and
// returns the updated row. The increment is a single atomic statement,
// so concurrent task completions never lose counts; the caller reads
// AllTerminal on the result to detect completion.
func (d Datasource) IncrementBatchCounters(ctx context.Context, batchID string, succeeded bool) (*model.BatchJob, error) {
	column := "failed_count"
	if succeeded {
		column = "succeeded_count"
	}
	row := d.Conn.QueryRowContext(ctx, `
		UPDATE reel.batch_jobs
		SET `+column+` = `+column+` + 1
		WHERE batch_id = $1
		RETURNING `+batchColumns+`
	`, batchID)

	batch, err := scanBatchJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Batch job not found", batchID)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update batch counters", err)
	}
	return batch, nil
}

// MarkBatchCompleted stamps the batch's completion time once. The
// returned bool reports whether this call won the stamp; only the
// winner should enqueue the completion webhook.
func (d Datasource) MarkBatchCompleted(ctx context.Context, batchID string) (*model.BatchJob, bool, error) {
	row := d.Conn.QueryRowContext(ctx, `
		UPDATE reel.batch_jobs
		SET completed_at = NOW()
		WHERE batch_id = $1 AND completed_at IS NULL
		RETURNING `+batchColumns+`
	`, batchID)

	batch, err := scanBatchJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			batch, err := d.GetBatchJob(ctx, batchID)
			if err != nil {
				return nil, false, err
			}
			return batch, false, nil
		}
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark batch completed", err)
	}
	return batch, true, nil
}

// UpdateBatchWebhookDelivery records the outcome of a webhook delivery
// attempt on the batch row.
func (d Datasource) UpdateBatchWebhookDelivery(ctx context.Context, batchID, status string, attempts int, lastError string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE reel.batch_jobs
		SET webhook_status = $2, webhook_attempts = $3, webhook_last_error = NULLIF($4, ''), webhook_last_sent_at = NOW()
		WHERE batch_id = $1
	`, batchID, status, attempts, lastError)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record webhook delivery", err)
	}
	return nil
}
