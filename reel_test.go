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
	"log"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/getreel/reel/config"
	"github.com/getreel/reel/database"
	"github.com/getreel/reel/internal/grsai"
	"github.com/getreel/reel/internal/stripepay"
	"github.com/getreel/reel/model"
)

func testConfig() *config.Configuration {
	return &config.Configuration{
		Redis: config.RedisConfig{Dns: "localhost:6379"},
		Queue: config.QueueConfig{
			WebhookQueue:     "batch_webhook_queue",
			PollQueue:        "render_poll_queue",
			PollIntervalSec:  1,
			WebhookMaxTries:  3,
			WebhookBackoffMs: 1,
			WebhookTimeout:   1,
		},
		Tiers: []model.Tier{
			{PlanID: "starter", Amount: decimal.NewFromFloat(9.00), PermanentCredits: 100, BonusCredits: 20, BonusExpiresDays: 30},
			{PlanID: "creator", Amount: decimal.NewFromFloat(39.00), PermanentCredits: 500, BonusCredits: 150, BonusExpiresDays: 30},
		},
		ModelCosts: []config.ModelCost{
			{ModelID: "sora-std", Credits: 10},
			{ModelID: "sora-pro", Credits: 30, AllowedPlans: []string{"creator", "studio"}},
		},
		WelcomeBonus: config.WelcomeBonusConfig{Credits: 50, ExpiresDays: 14},
	}
}

func newTestReel() (*Reel, sqlmock.Sqlmock, error) {
	config.MockConfig(testConfig())
	db, mock, err := sqlmock.New()
	if err != nil {
		log.Printf("an error '%s' was not expected when opening a stub database Connection", err)
	}
	cfg, err := config.Fetch()
	if err != nil {
		return nil, nil, err
	}
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	r := &Reel{
		datasource: &database.Datasource{Conn: db},
		queue:      NewQueue(cfg),
		redis:      redis.NewClient(&redis.Options{Addr: mr.Addr()}),
	}
	return r, mock, nil
}

type stubVerifier struct {
	status *stripepay.PaymentStatus
	err    error
}

func (s stubVerifier) VerifyPayment(_ context.Context, _ string) (*stripepay.PaymentStatus, error) {
	return s.status, s.err
}

type stubProvider struct {
	submitRef string
	submitErr error
	poll      *grsai.PollResult
	pollErr   error
}

func (s stubProvider) Submit(_ context.Context, _ grsai.SubmitRequest) (string, error) {
	return s.submitRef, s.submitErr
}

func (s stubProvider) Poll(_ context.Context, _ string) (*grsai.PollResult, error) {
	return s.poll, s.pollErr
}
