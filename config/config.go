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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/getreel/reel/model"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"REEL_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"REEL_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"REEL_SERVER_SECRET_KEY"`
	AdminKey  string `json:"admin_key" envconfig:"REEL_SERVER_ADMIN_KEY"`
	Domain    string `json:"domain" envconfig:"REEL_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"REEL_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"REEL_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"REEL_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"REEL_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"REEL_REDIS_SKIP_TLS_VERIFY"`
}

type StripeConfig struct {
	SecretKey string `json:"secret_key" envconfig:"REEL_STRIPE_SECRET_KEY"`
}

// GrsaiConfig points at the remote render provider's API.
type GrsaiConfig struct {
	BaseURL    string `json:"base_url" envconfig:"REEL_GRSAI_BASE_URL"`
	APIKey     string `json:"api_key" envconfig:"REEL_GRSAI_API_KEY"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"REEL_GRSAI_TIMEOUT_SEC"`
}

type QueueConfig struct {
	WebhookQueue     string `json:"webhook_queue" envconfig:"REEL_QUEUE_WEBHOOK"`
	PollQueue        string `json:"poll_queue" envconfig:"REEL_QUEUE_POLL"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"REEL_QUEUE_MONITORING_PORT"`
	PollIntervalSec  int    `json:"poll_interval_sec" envconfig:"REEL_QUEUE_POLL_INTERVAL_SEC"`
	NumberOfWorkers  int    `json:"number_of_workers" envconfig:"REEL_QUEUE_NUMBER_OF_WORKERS"`
	WebhookMaxTries  int    `json:"webhook_max_tries" envconfig:"REEL_QUEUE_WEBHOOK_MAX_TRIES"`
	WebhookTimeout   int    `json:"webhook_timeout_sec" envconfig:"REEL_QUEUE_WEBHOOK_TIMEOUT_SEC"`
	WebhookBackoffMs int    `json:"webhook_backoff_ms" envconfig:"REEL_QUEUE_WEBHOOK_BACKOFF_MS"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"REEL_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"REEL_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"REEL_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

// ModelCost maps a render model to its credit cost and the plans
// allowed to use it.
type ModelCost struct {
	ModelID      string   `json:"model_id"`
	Credits      int64    `json:"credits"`
	AllowedPlans []string `json:"allowed_plans,omitempty"`
}

// QuotaConfig caps renders per scope window. Zero means uncapped.
type QuotaConfig struct {
	DailyRenderCap  int `json:"daily_render_cap" envconfig:"REEL_QUOTA_DAILY_RENDER_CAP"`
	WeeklyRenderCap int `json:"weekly_render_cap" envconfig:"REEL_QUOTA_WEEKLY_RENDER_CAP"`
}

type WelcomeBonusConfig struct {
	Credits     int64 `json:"credits" envconfig:"REEL_WELCOME_BONUS_CREDITS"`
	ExpiresDays int   `json:"expires_days" envconfig:"REEL_WELCOME_BONUS_EXPIRES_DAYS"`
}

type Configuration struct {
	ProjectName        string `json:"project_name" envconfig:"REEL_PROJECT_NAME"`
	EnableTelemetry    bool   `json:"enable_telemetry" envconfig:"REEL_ENABLE_TELEMETRY"`
	BackupDir          string `json:"backup_dir" envconfig:"REEL_BACKUP_DIR"`
	AwsAccessKeyId     string `json:"aws_access_key_id"`
	AwsSecretAccessKey string `json:"aws_secret_access_key"`
	S3BucketName       string `json:"s3_bucket_name"`
	S3Region           string `json:"s3_region"`

	Server       ServerConfig       `json:"server"`
	DataSource   DataSourceConfig   `json:"data_source"`
	Redis        RedisConfig        `json:"redis"`
	Stripe       StripeConfig       `json:"stripe"`
	Grsai        GrsaiConfig        `json:"grsai"`
	Queue        QueueConfig        `json:"queue"`
	Notification Notification       `json:"notification"`
	RateLimit    RateLimitConfig    `json:"rate_limit"`
	Quota        QuotaConfig        `json:"quota"`
	WelcomeBonus WelcomeBonusConfig `json:"welcome_bonus"`
	Tiers        []model.Tier       `json:"tiers"`
	ModelCosts   []ModelCost        `json:"model_costs"`
}

// CostFor returns the credit cost for a render model, or 0 when the
// model is unknown.
func (cnf *Configuration) CostFor(modelID string) int64 {
	for _, mc := range cnf.ModelCosts {
		if mc.ModelID == modelID {
			return mc.Credits
		}
	}
	return 0
}

// PlanAllowed reports whether a plan may use the given render model. A
// model with no allow-list is open to every plan.
func (cnf *Configuration) PlanAllowed(modelID, planID string) bool {
	for _, mc := range cnf.ModelCosts {
		if mc.ModelID != modelID {
			continue
		}
		if len(mc.AllowedPlans) == 0 {
			return true
		}
		for _, p := range mc.AllowedPlans {
			if p == planID {
				return true
			}
		}
		return false
	}
	return false
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("reel", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called reel.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Reel Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Grsai.TimeoutSec == 0 {
		cnf.Grsai.TimeoutSec = 30
	}

	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "batch_webhook_queue"
	}
	if cnf.Queue.PollQueue == "" {
		cnf.Queue.PollQueue = "render_poll_queue"
	}
	if cnf.Queue.PollIntervalSec == 0 {
		cnf.Queue.PollIntervalSec = 10
	}
	if cnf.Queue.NumberOfWorkers == 0 {
		cnf.Queue.NumberOfWorkers = 10
	}
	if cnf.Queue.WebhookMaxTries == 0 {
		cnf.Queue.WebhookMaxTries = 3
	}
	if cnf.Queue.WebhookTimeout == 0 {
		cnf.Queue.WebhookTimeout = 5
	}
	if cnf.Queue.WebhookBackoffMs == 0 {
		cnf.Queue.WebhookBackoffMs = 500
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}

	if cnf.WelcomeBonus.Credits == 0 {
		cnf.WelcomeBonus.Credits = 50
	}
	if cnf.WelcomeBonus.ExpiresDays == 0 {
		cnf.WelcomeBonus.ExpiresDays = 14
	}

	if len(cnf.Tiers) == 0 {
		cnf.Tiers = defaultTiers()
		log.Println("Warning: No purchase tiers configured. Using built-in defaults.")
	}

	if len(cnf.ModelCosts) == 0 {
		cnf.ModelCosts = defaultModelCosts()
		log.Println("Warning: No model costs configured. Using built-in defaults.")
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func defaultTiers() []model.Tier {
	return []model.Tier{
		{PlanID: "starter", Amount: decimal.NewFromFloat(9.00), PermanentCredits: 100, BonusCredits: 20, BonusExpiresDays: 30},
		{PlanID: "creator", Amount: decimal.NewFromFloat(39.00), PermanentCredits: 500, BonusCredits: 150, BonusExpiresDays: 30},
		{PlanID: "studio", Amount: decimal.NewFromFloat(99.00), PermanentCredits: 1500, BonusCredits: 500, BonusExpiresDays: 60},
	}
}

func defaultModelCosts() []ModelCost {
	return []ModelCost{
		{ModelID: "sora-std", Credits: 10},
		{ModelID: "sora-pro", Credits: 30, AllowedPlans: []string{"creator", "studio"}},
		{ModelID: "veo-fast", Credits: 15},
		{ModelID: "veo-quality", Credits: 40, AllowedPlans: []string{"studio"}},
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
