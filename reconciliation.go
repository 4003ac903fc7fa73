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

	redlock "github.com/getreel/reel/internal/lock"
	"github.com/getreel/reel/model"
)

var reconciliationTracer = otel.Tracer("reel.reconciliation")

const reconciliationLockKey = "reel:reconciliation:lock"

// ReconcileLegacyBalances compares the migrated legacy balance column
// against the dual-balance wallets and reports every mismatch. The
// report is read-only; corrections go through AdminAdjust so they leave
// a ledger trail. A redis lock keeps concurrent sweeps from doubling
// the drift alerts.
func (r *Reel) ReconcileLegacyBalances(ctx context.Context, limit int) ([]model.LegacyMismatch, error) {
	ctx, span := reconciliationTracer.Start(ctx, "ReconcileLegacyBalances")
	defer span.End()

	locker := redlock.NewLocker(r.redis, reconciliationLockKey, model.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, 5*time.Minute); err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Error(err)
		}
	}()

	mismatches, err := r.datasource.GetLegacyMismatches(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.AddEvent("Reconciliation finished", trace.WithAttributes(attribute.Int("mismatch.count", len(mismatches))))
	if len(mismatches) > 0 {
		logrus.WithFields(logrus.Fields{"mismatches": len(mismatches)}).Warn("legacy balance drift detected")
	}
	return mismatches, nil
}
