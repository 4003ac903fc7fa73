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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/getreel/reel/model"
)

func taskRows(taskID, status string, progress int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"task_id", "user_id", "batch_id", "model_id", "provider_ref", "consumption_id", "status", "progress", "video_url", "error_message", "failure_reason", "created_at", "completed_at"}).
		AddRow(taskID, "usr_1", nil, "sora-2", "job_9", "con_1", status, progress, nil, nil, nil, time.Now(), nil)
}

func TestCreateRenderTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO reel.render_tasks").
		WithArgs(sqlmock.AnyArg(), "usr_1", "", "sora-2", "con_1", model.TaskPending).
		WillReturnResult(sqlmock.NewResult(1, 1))

	task, err := ds.CreateRenderTask(context.Background(), &model.RenderTask{
		UserID:        "usr_1",
		ModelID:       "sora-2",
		ConsumptionID: "con_1",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, model.TaskPending, task.Status)
}

func TestCompleteRenderTask_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("UPDATE reel.render_tasks").
		WithArgs("tsk_1", model.TaskSucceeded, "https://cdn.example.com/v.mp4", model.TaskSucceeded, model.TaskFailed).
		WillReturnRows(taskRows("tsk_1", model.TaskSucceeded, 100))

	task, transitioned, err := ds.CompleteRenderTask(context.Background(), "tsk_1", "https://cdn.example.com/v.mp4")
	assert.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, model.TaskSucceeded, task.Status)
}

func TestCompleteRenderTask_AlreadyTerminal(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("UPDATE reel.render_tasks").
		WithArgs("tsk_1", model.TaskSucceeded, "https://cdn.example.com/v.mp4", model.TaskSucceeded, model.TaskFailed).
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}))
	mock.ExpectQuery("SELECT .* FROM reel.render_tasks WHERE task_id =").
		WithArgs("tsk_1").
		WillReturnRows(taskRows("tsk_1", model.TaskFailed, 40))

	task, transitioned, err := ds.CompleteRenderTask(context.Background(), "tsk_1", "https://cdn.example.com/v.mp4")
	assert.NoError(t, err)
	assert.False(t, transitioned)
	assert.Equal(t, model.TaskFailed, task.Status)
}

func TestFailRenderTask_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("UPDATE reel.render_tasks").
		WithArgs("tsk_1", model.TaskFailed, "provider error", "SUCCEEDED_WITHOUT_VIDEO_URL", model.TaskSucceeded, model.TaskFailed).
		WillReturnRows(taskRows("tsk_1", model.TaskFailed, 90))

	task, transitioned, err := ds.FailRenderTask(context.Background(), "tsk_1", "provider error", "SUCCEEDED_WITHOUT_VIDEO_URL")
	assert.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, model.TaskFailed, task.Status)
}

func TestMarkRenderTaskSubmitted_NotPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE reel.render_tasks").
		WithArgs("tsk_1", "job_9", model.TaskProcessing, model.TaskPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.MarkRenderTaskSubmitted(context.Background(), "tsk_1", "job_9")
	assert.Error(t, err)
}
