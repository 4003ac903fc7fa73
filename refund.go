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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/getreel/reel/model"
)

var refundTracer = otel.Tracer("reel.refund")

// RefundConsumption returns a spent consumption's credits to the
// wallet. Refunds always land in the permanent bucket, regardless of
// which bucket funded the spend. Exactly-once: a second call fails with
// AlreadyRefunded and leaves the wallet untouched.
func (r *Reel) RefundConsumption(ctx context.Context, consumptionID string) (*model.Consumption, *model.Wallet, error) {
	ctx, span := refundTracer.Start(ctx, "RefundConsumption")
	defer span.End()

	cons, wallet, err := r.datasource.RefundConsumption(ctx, consumptionID, model.RefRenderRefund, "manual refund")
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}

	span.AddEvent("Consumption refunded", trace.WithAttributes(
		attribute.String("consumption.id", cons.ConsumptionID),
		attribute.Int64("consumption.credits", cons.Credits),
	))
	logrus.WithFields(logrus.Fields{
		"consumption_id": cons.ConsumptionID,
		"user_id":        cons.UserID,
		"credits":        cons.Credits,
	}).Info("consumption refunded")
	return cons, wallet, nil
}
