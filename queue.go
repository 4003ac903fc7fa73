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
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/getreel/reel/config"
	redis_db "github.com/getreel/reel/internal/redis-db"

	"github.com/hibiken/asynq"
)

// Queue wraps the asynq client used to hand work to the background
// workers: batch webhook deliveries and render-task polls.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// batchWebhookPayload is the task payload for a batch completion
// delivery. The worker reloads the batch row, so the payload carries
// only the id.
type batchWebhookPayload struct {
	BatchID string `json:"batch_id"`
}

// renderPollPayload is the task payload for a render-task poll.
type renderPollPayload struct {
	TaskID string `json:"task_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueBatchWebhook enqueues a batch completion delivery. Retries are
// handled inside the delivery loop, so the asynq task itself never
// retries; a duplicate enqueue for the same batch is rejected by the
// task id.
func (q *Queue) queueBatchWebhook(batchID string) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(batchWebhookPayload{BatchID: batchID})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("webhook_%s", batchID)),
		asynq.Queue(cfg.Queue.WebhookQueue),
		asynq.MaxRetry(0),
	}
	task := asynq.NewTask(cfg.Queue.WebhookQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

// queueRenderPoll schedules the next provider poll for a task.
func (q *Queue) queueRenderPoll(taskID string, delay time.Duration) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(renderPollPayload{TaskID: taskID})
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.Queue(cfg.Queue.PollQueue),
		asynq.ProcessIn(delay),
	}
	task := asynq.NewTask(cfg.Queue.PollQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}
