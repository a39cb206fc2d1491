package infra

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string // empty selects the in-memory ledger
	StoragePath string

	ReplicateAPIToken   string
	ReplicateBaseURL    string
	ReplicateDepthModel string
	ReplicateMaskModel  string

	HFAPIToken      string
	HFBaseURL       string
	HFClassifyModel string
	HFDepthModel    string

	ProviderTimeout      time.Duration
	ProviderPollInterval time.Duration
	ProviderPollCeiling  time.Duration

	PipelineWorkers int
	PipelineDepth   int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. The zero-credential configuration is fully
// supported: with no provider tokens and no DATABASE_URL the service runs on
// local fallbacks and the in-memory ledger.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StoragePath: getEnv("STORAGE_PATH", "./data/storage"),

		ReplicateAPIToken:   os.Getenv("REPLICATE_API_TOKEN"),
		ReplicateBaseURL:    getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicateDepthModel: getEnv("REPLICATE_DEPTH_MODEL", "cjwbw/midas:a6ba5798f04f80d3b314de0f0a62277f21ab3503c60c84d4817de83c5edfdae0"),
		ReplicateMaskModel:  os.Getenv("REPLICATE_MASK_MODEL"),

		HFAPIToken:      os.Getenv("HF_API_TOKEN"),
		HFBaseURL:       getEnv("HF_BASE_URL", "https://api-inference.huggingface.co"),
		HFClassifyModel: getEnv("HF_CLASSIFY_MODEL", "google/vit-base-patch16-224"),
		HFDepthModel:    getEnv("HF_DEPTH_MODEL", "Intel/dpt-large"),

		ProviderTimeout:      time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),
		ProviderPollInterval: time.Second * time.Duration(getEnvInt("PROVIDER_POLL_INTERVAL_SECONDS", 1)),
		ProviderPollCeiling:  time.Second * time.Duration(getEnvInt("PROVIDER_POLL_CEILING_SECONDS", 60)),

		PipelineWorkers: getEnvInt("PIPELINE_WORKERS", 4),
		PipelineDepth:   getEnvInt("PIPELINE_QUEUE_DEPTH", 64),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
