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
	"embed"
	"fmt"
	"time"

	"github.com/getreel/reel/config"
	"github.com/getreel/reel/database"
	"github.com/getreel/reel/internal/grsai"
	redis_db "github.com/getreel/reel/internal/redis-db"
	"github.com/getreel/reel/internal/stripepay"
	"github.com/redis/go-redis/v9"
)

// SQLFiles embeds the schema migrations shipped with the binary.
//
//go:embed sql/*.sql
var SQLFiles embed.FS

// RenderProvider is the remote render backend. grsai.Client is the
// production implementation.
type RenderProvider interface {
	Submit(ctx context.Context, req grsai.SubmitRequest) (string, error)
	Poll(ctx context.Context, taskID string) (*grsai.PollResult, error)
}

// Reel represents the main struct for the Reel application.
type Reel struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	provider   RenderProvider
	payments   stripepay.Verifier
}

// NewReel initializes a new instance of Reel with the provided database
// datasource. It fetches the configuration and initializes the Redis
// client, task queue, render provider and payment verifier.
func NewReel(db database.IDataSource) (*Reel, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	provider := grsai.NewClient(configuration.Grsai.BaseURL, configuration.Grsai.APIKey, time.Duration(configuration.Grsai.TimeoutSec)*time.Second)
	payments := stripepay.NewClient(configuration.Stripe.SecretKey)

	newReel := &Reel{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		provider:   provider,
		payments:   payments,
	}
	return newReel, nil
}
