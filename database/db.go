package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/getreel/reel/cache"
	"github.com/getreel/reel/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		ca, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("cache unavailable, reads fall through to postgres: %v", errCache)
		}
		instance = &Datasource{Conn: con, Cache: ca}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	if err := CreateSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

// CreateSchema bootstraps all tables. Safe to run repeatedly.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS reel`); err != nil {
		return err
	}
	steps := []func(*sql.DB) error{
		createWalletTable,
		createLedgerTable,
		createConsumptionTable,
		createRechargeTable,
		createRenderTaskTable,
		createBatchJobTable,
		createUsageCounterTable,
	}
	for _, step := range steps {
		if err := step(db); err != nil {
			return err
		}
	}
	return nil
}

func createWalletTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reel.wallets (
			id SERIAL PRIMARY KEY,
			wallet_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL UNIQUE,
			plan_id TEXT NOT NULL DEFAULT 'free',
			permanent_credits BIGINT NOT NULL DEFAULT 0 CHECK (permanent_credits >= 0),
			bonus_credits BIGINT NOT NULL DEFAULT 0 CHECK (bonus_credits >= 0),
			bonus_expires_at TIMESTAMPTZ,
			legacy_credits BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createLedgerTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reel.wallet_ledger (
			id SERIAL PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			delta_permanent BIGINT NOT NULL DEFAULT 0,
			delta_bonus BIGINT NOT NULL DEFAULT 0,
			reason TEXT,
			ref_type TEXT NOT NULL,
			ref_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_user ON reel.wallet_ledger (user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_ledger_ref ON reel.wallet_ledger (ref_type, ref_id);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_welcome ON reel.wallet_ledger (ref_type, ref_id)
			WHERE ref_type = 'welcome_bonus';
	`)
	return err
}

func createConsumptionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reel.consumptions (
			id SERIAL PRIMARY KEY,
			consumption_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			credits BIGINT NOT NULL CHECK (credits > 0),
			status TEXT NOT NULL DEFAULT 'completed',
			refunded_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_consumptions_user ON reel.consumptions (user_id, created_at);
	`)
	return err
}

func createRechargeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reel.recharges (
			id SERIAL PRIMARY KEY,
			recharge_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			credits BIGINT NOT NULL DEFAULT 0,
			payment_method TEXT,
			payment_id TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'pending',
			completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createRenderTaskTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reel.render_tasks (
			id SERIAL PRIMARY KEY,
			task_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			batch_id TEXT,
			model_id TEXT NOT NULL,
			provider_ref TEXT,
			consumption_id TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			progress INT NOT NULL DEFAULT 0,
			video_url TEXT,
			error_message TEXT,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_render_tasks_batch ON reel.render_tasks (batch_id);
	`)
	return err
}

func createBatchJobTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reel.batch_jobs (
			id SERIAL PRIMARY KEY,
			batch_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			model_id TEXT NOT NULL,
			total_count INT NOT NULL DEFAULT 0,
			succeeded_count INT NOT NULL DEFAULT 0,
			failed_count INT NOT NULL DEFAULT 0,
			credits_spent BIGINT NOT NULL DEFAULT 0,
			webhook_url TEXT,
			webhook_secret TEXT,
			webhook_status TEXT NOT NULL DEFAULT 'unset',
			webhook_attempts INT NOT NULL DEFAULT 0,
			webhook_last_error TEXT,
			webhook_last_sent_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)
	`)
	return err
}

func createUsageCounterTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reel.usage_counters (
			id SERIAL PRIMARY KEY,
			scope_key TEXT NOT NULL,
			model_id TEXT NOT NULL,
			window_kind TEXT NOT NULL,
			window_start DATE NOT NULL,
			count INT NOT NULL DEFAULT 0,
			UNIQUE (scope_key, model_id, window_kind, window_start)
		)
	`)
	return err
}
