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
	"time"

	"github.com/getreel/reel/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	wallet
	ledger
	consumption
	recharge
	renderTask
	batchJob
	reconciliation
}

var _ IDataSource = Datasource{}

// DeductParams carries everything one atomic render spend needs: the
// quota scopes to count, the caps to enforce, and the consumption row
// to create alongside the wallet deduction.
type DeductParams struct {
	UserID    string
	TaskID    string
	ModelID   string
	Cost      int64
	ScopeKeys []string
	DailyCap  int
	WeeklyCap int
	Reason    string
	RefType   string
}

// wallet defines the atomic balance mutations. Every method that moves
// credits writes its ledger row in the same database transaction.
type wallet interface {
	GetWalletByUserID(ctx context.Context, userID string) (*model.Wallet, error)
	CreditWallet(ctx context.Context, userID string, deltaPermanent, deltaBonus int64, bonusExpiresAt *time.Time, planID string, entry model.LedgerEntry) (*model.Wallet, error)
	DeductForRender(ctx context.Context, params DeductParams) (*model.Wallet, *model.Consumption, error)
	GrantWelcomeBonus(ctx context.Context, userID string, credits int64, expiresAt time.Time) (*model.Wallet, bool, error)
}

// ledger defines read access to the audit trail. Writes happen only
// inside wallet mutations.
type ledger interface {
	GetLedgerEntries(ctx context.Context, userID string, limit, offset int) ([]model.LedgerEntry, error)
	GetLedgerEntriesByRef(ctx context.Context, refType, refID string) ([]model.LedgerEntry, error)
}

type consumption interface {
	GetConsumption(ctx context.Context, consumptionID string) (*model.Consumption, error)
	RefundConsumption(ctx context.Context, consumptionID, refType, reason string) (*model.Consumption, *model.Wallet, error)
}

type recharge interface {
	CreateRecharge(ctx context.Context, recharge *model.Recharge) (*model.Recharge, error)
	GetRechargeByPaymentID(ctx context.Context, paymentID string) (*model.Recharge, error)
	CompleteRecharge(ctx context.Context, paymentID string, tier *model.Tier) (*model.Recharge, *model.Wallet, bool, error)
}

type renderTask interface {
	CreateRenderTask(ctx context.Context, task *model.RenderTask) (*model.RenderTask, error)
	GetRenderTask(ctx context.Context, taskID string) (*model.RenderTask, error)
	MarkRenderTaskSubmitted(ctx context.Context, taskID, providerRef string) error
	UpdateRenderTaskProgress(ctx context.Context, taskID string, progress int) error
	CompleteRenderTask(ctx context.Context, taskID, videoURL string) (*model.RenderTask, bool, error)
	FailRenderTask(ctx context.Context, taskID, errorMessage, failureReason string) (*model.RenderTask, bool, error)
	GetRenderTasksByBatch(ctx context.Context, batchID string) ([]*model.RenderTask, error)
}

type batchJob interface {
	CreateBatchJob(ctx context.Context, batch *model.BatchJob) (*model.BatchJob, error)
	GetBatchJob(ctx context.Context, batchID string) (*model.BatchJob, error)
	IncrementBatchCounters(ctx context.Context, batchID string, succeeded bool) (*model.BatchJob, error)
	MarkBatchCompleted(ctx context.Context, batchID string) (*model.BatchJob, bool, error)
	UpdateBatchWebhookDelivery(ctx context.Context, batchID, status string, attempts int, lastError string) error
}

type reconciliation interface {
	GetLegacyMismatches(ctx context.Context, limit int) ([]model.LegacyMismatch, error)
}
