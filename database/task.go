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

const taskColumns = `task_id, user_id, batch_id, model_id, provider_ref, consumption_id, status, progress, video_url, error_message, failure_reason, created_at, completed_at`

func scanRenderTask(row rowScanner) (*model.RenderTask, error) {
	task := &model.RenderTask{}
	var batchID, providerRef, videoURL, errorMessage, failureReason sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&task.TaskID,
		&task.UserID,
		&batchID,
		&task.ModelID,
		&providerRef,
		&task.ConsumptionID,
		&task.Status,
		&task.Progress,
		&videoURL,
		&errorMessage,
		&failureReason,
		&task.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	task.BatchID = batchID.String
	task.ProviderRef = providerRef.String
	task.VideoURL = videoURL.String
	task.ErrorMessage = errorMessage.String
	task.FailureReason = failureReason.String
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return task, nil
}

// CreateRenderTask persists a new pending render task.
func (d Datasource) CreateRenderTask(ctx context.Context, task *model.RenderTask) (*model.RenderTask, error) {
	task.TaskID = model.GenerateUUIDWithSuffix("tsk")
	task.Status = model.TaskPending
	task.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO reel.render_tasks (task_id, user_id, batch_id, model_id, consumption_id, status)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)
	`, task.TaskID, task.UserID, task.BatchID, task.ModelID, task.ConsumptionID, task.Status)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create render task", err)
	}
	return task, nil
}

// GetRenderTask retrieves a render task by ID.
func (d Datasource) GetRenderTask(ctx context.Context, taskID string) (*model.RenderTask, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM reel.render_tasks
		WHERE task_id = $1
	`, taskID)

	task, err := scanRenderTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Render task not found", taskID)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve render task", err)
	}
	return task, nil
}

// MarkRenderTaskSubmitted records the provider's job reference and
// moves the task to processing.
func (d Datasource) MarkRenderTaskSubmitted(ctx context.Context, taskID, providerRef string) error {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE reel.render_tasks
		SET provider_ref = $2, status = $3
		WHERE task_id = $1 AND status = $4
	`, taskID, providerRef, model.TaskProcessing, model.TaskPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark render task submitted", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check render task update", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Render task not pending", taskID)
	}
	return nil
}

// UpdateRenderTaskProgress bumps the progress of a processing task.
// Terminal tasks are left untouched.
func (d Datasource) UpdateRenderTaskProgress(ctx context.Context, taskID string, progress int) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE reel.render_tasks
		SET progress = $2
		WHERE task_id = $1 AND status = $3
	`, taskID, progress, model.TaskProcessing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update render task progress", err)
	}
	return nil
}

// CompleteRenderTask moves a task to succeeded. The transition is
// conditional on the task not already being terminal; the returned
// bool reports whether this call made the transition.
func (d Datasource) CompleteRenderTask(ctx context.Context, taskID, videoURL string) (*model.RenderTask, bool, error) {
	row := d.Conn.QueryRowContext(ctx, `
		UPDATE reel.render_tasks
		SET status = $2, progress = 100, video_url = $3, completed_at = NOW()
		WHERE task_id = $1 AND status NOT IN ($4, $5)
		RETURNING `+taskColumns+`
	`, taskID, model.TaskSucceeded, videoURL, model.TaskSucceeded, model.TaskFailed)

	task, err := scanRenderTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			task, err := d.GetRenderTask(ctx, taskID)
			if err != nil {
				return nil, false, err
			}
			return task, false, nil
		}
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to complete render task", err)
	}
	return task, true, nil
}

// FailRenderTask moves a task to failed with the provider's error
// detail. Same conditional transition contract as CompleteRenderTask.
func (d Datasource) FailRenderTask(ctx context.Context, taskID, errorMessage, failureReason string) (*model.RenderTask, bool, error) {
	row := d.Conn.QueryRowContext(ctx, `
		UPDATE reel.render_tasks
		SET status = $2, error_message = $3, failure_reason = $4, completed_at = NOW()
		WHERE task_id = $1 AND status NOT IN ($5, $6)
		RETURNING `+taskColumns+`
	`, taskID, model.TaskFailed, errorMessage, failureReason, model.TaskSucceeded, model.TaskFailed)

	task, err := scanRenderTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			task, err := d.GetRenderTask(ctx, taskID)
			if err != nil {
				return nil, false, err
			}
			return task, false, nil
		}
		return nil, false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to fail render task", err)
	}
	return task, true, nil
}

// GetRenderTasksByBatch lists every task belonging to a batch.
func (d Datasource) GetRenderTasksByBatch(ctx context.Context, batchID string) ([]*model.RenderTask, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM reel.render_tasks
		WHERE batch_id = $1
		ORDER BY created_at ASC
	`, batchID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve batch tasks", err)
	}
	defer rows.Close()

	tasks := []*model.RenderTask{}
	for rows.Next() {
		task, err := scanRenderTask(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan render task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read batch tasks", err)
	}
	return tasks, nil
}
