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

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/getreel/reel/config"
	"github.com/getreel/reel/internal/apierror"
	"github.com/getreel/reel/model"
)

var billingTracer = otel.Tracer("reel.billing")

// BeginCheckout records a pending recharge for a checkout session
// before the user is sent off to pay. Finalization later settles
// against this row; a session nobody registered cannot be settled.
func (r *Reel) BeginCheckout(ctx context.Context, userID, sessionID string, amount decimal.Decimal) (*model.Recharge, error) {
	ctx, span := billingTracer.Start(ctx, "BeginCheckout")
	defer span.End()

	recharge, err := r.datasource.CreateRecharge(ctx, &model.Recharge{
		UserID:        userID,
		Amount:        amount,
		PaymentMethod: "stripe",
		PaymentID:     sessionID,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.AddEvent("Checkout registered", trace.WithAttributes(attribute.String("recharge.id", recharge.RechargeID)))
	return recharge, nil
}

// FinalizePayment settles a checkout session against the user's wallet.
// The payment processor is the source of truth: the session must be
// paid, and the paid amount must match a configured tier. The recharge
// row registered at checkout must exist; its user decides whose wallet
// is credited. Finalization is idempotent per session id, so webhook
// deliveries and success-page callbacks can race freely.
func (r *Reel) FinalizePayment(ctx context.Context, sessionID string) (*model.Recharge, *model.Wallet, error) {
	ctx, span := billingTracer.Start(ctx, "FinalizePayment")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, nil, err
	}

	status, err := r.payments.VerifyPayment(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to verify payment", err)
	}
	if !status.Paid {
		span.AddEvent("Payment not confirmed")
		return nil, nil, apierror.NewAPIError(apierror.ErrPaymentNotConfirmed, "Payment is not confirmed by the processor", sessionID)
	}

	tier := model.MatchTier(status.Amount, cfg.Tiers)
	if tier == nil {
		span.AddEvent("Paid amount matches no tier")
		return nil, nil, apierror.NewAPIError(apierror.ErrUnknownTier, fmt.Sprintf("Paid amount %s matches no tier", status.Amount.String()), sessionID)
	}

	if _, err := r.datasource.GetRechargeByPaymentID(ctx, sessionID); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	recharge, wallet, applied, err := r.datasource.CompleteRecharge(ctx, sessionID, tier)
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	if applied {
		span.AddEvent("Payment finalized", trace.WithAttributes(attribute.String("recharge.id", recharge.RechargeID)))
		logrus.WithFields(logrus.Fields{
			"recharge_id": recharge.RechargeID,
			"user_id":     recharge.UserID,
			"plan_id":     tier.PlanID,
			"credits":     recharge.Credits,
		}).Info("payment finalized")
	} else {
		span.AddEvent("Replay ignored, recharge already completed")
	}
	return recharge, wallet, nil
}
