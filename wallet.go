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
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/getreel/reel/config"
	"github.com/getreel/reel/model"
)

var walletTracer = otel.Tracer("reel.wallet")

// GetWallet retrieves a user's wallet.
func (r *Reel) GetWallet(ctx context.Context, userID string) (*model.Wallet, error) {
	ctx, span := walletTracer.Start(ctx, "GetWallet")
	defer span.End()

	wallet, err := r.datasource.GetWalletByUserID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return wallet, nil
}

// GetLedger returns a page of a user's ledger entries, newest first.
func (r *Reel) GetLedger(ctx context.Context, userID string, limit, offset int) ([]model.LedgerEntry, error) {
	ctx, span := walletTracer.Start(ctx, "GetLedger")
	defer span.End()

	entries, err := r.datasource.GetLedgerEntries(ctx, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

// GrantWelcomeBonus credits the configured signup bonus, at most once
// per user. Replays return the wallet unchanged.
func (r *Reel) GrantWelcomeBonus(ctx context.Context, userID string) (*model.Wallet, bool, error) {
	ctx, span := walletTracer.Start(ctx, "GrantWelcomeBonus")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, false, err
	}

	expiresAt := time.Now().AddDate(0, 0, cfg.WelcomeBonus.ExpiresDays)
	wallet, granted, err := r.datasource.GrantWelcomeBonus(ctx, userID, cfg.WelcomeBonus.Credits, expiresAt)
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	if granted {
		span.AddEvent("Welcome bonus granted", trace.WithAttributes(attribute.String("user.id", userID)))
	} else {
		span.AddEvent("Welcome bonus already granted")
	}
	return wallet, granted, nil
}

// AdminAdjust applies a signed manual correction to a wallet. Negative
// deltas fail rather than drive either balance below zero.
func (r *Reel) AdminAdjust(ctx context.Context, userID string, deltaPermanent, deltaBonus int64, reason string) (*model.Wallet, error) {
	ctx, span := walletTracer.Start(ctx, "AdminAdjust")
	defer span.End()

	wallet, err := r.datasource.CreditWallet(ctx, userID, deltaPermanent, deltaBonus, nil, "", model.LedgerEntry{
		Reason:  reason,
		RefType: model.RefAdminAdjustment,
		RefID:   model.GenerateUUIDWithSuffix("adj"),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"user_id":         userID,
		"delta_permanent": deltaPermanent,
		"delta_bonus":     deltaBonus,
		"reason":          reason,
	}).Info("admin adjustment applied")
	return wallet, nil
}
