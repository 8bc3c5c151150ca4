package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config carries everything the sync engine needs from the environment.
// It is built once by Load at process start and passed by reference;
// nothing in here is mutated afterwards.
type Config struct {
	VMPayBaseURL     string `envconfig:"VMPAY_BASE_URL" default:"https://vmpay.vertitecnologia.com.br/api/v1" validate:"required,url"`
	VMPayAccessToken string `envconfig:"VM_API_TOKEN" validate:"required"`
	PageSize         int    `envconfig:"VMPAY_PAGE_SIZE" default:"100" validate:"min=1,max=500"`

	BigQueryProjectID       string `envconfig:"BIGQUERY_PROJECT_ID"`
	BigQueryDatasetID       string `envconfig:"BIGQUERY_DATASET_ID" validate:"required"`
	BigQueryCredentialsJSON string `envconfig:"BIGQUERY_CREDENTIALS_JSON"`

	GCSBucket          string `envconfig:"GCS_BUCKET"`
	GCSCredentialsJSON string `envconfig:"GCS_CREDENTIALS_JSON"`
	ArtifactPrefix     string `envconfig:"BACKFILL_ARTIFACT_PREFIX" default:"historical_cashless"`

	SyncTopic          string `envconfig:"VMPAY_SYNC_TOPIC" default:"vmpay-sync"`
	SyncLockTTLSeconds int    `envconfig:"VMPAY_SYNC_LOCK_TTL_SECONDS" default:"1800" validate:"min=60"`
}

// Load reads .env (when present), the process environment, and validates the
// result. CLIs and the service both call this exactly once.
func Load() (*Config, error) {
	godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
