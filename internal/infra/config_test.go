package infra

import (
	"testing"
	"time"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "PORT", "DATABASE_URL", "STORAGE_PATH",
		"REPLICATE_API_TOKEN", "REPLICATE_MASK_MODEL",
		"HF_API_TOKEN",
		"PROVIDER_POLL_INTERVAL_SECONDS", "PIPELINE_WORKERS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearProviderEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppEnv != "development" {
		t.Errorf("AppEnv = %q, want development", cfg.AppEnv)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.ReplicateMaskModel != "" {
		t.Errorf("ReplicateMaskModel = %q, want unset", cfg.ReplicateMaskModel)
	}
	if cfg.ProviderPollInterval != time.Second {
		t.Errorf("ProviderPollInterval = %v, want 1s", cfg.ProviderPollInterval)
	}
	if cfg.ProviderPollCeiling != 60*time.Second {
		t.Errorf("ProviderPollCeiling = %v, want 60s", cfg.ProviderPollCeiling)
	}
	if cfg.PipelineWorkers != 4 {
		t.Errorf("PipelineWorkers = %d, want 4", cfg.PipelineWorkers)
	}
	if cfg.PipelineDepth != 64 {
		t.Errorf("PipelineDepth = %d, want 64", cfg.PipelineDepth)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/parallax")
	t.Setenv("REPLICATE_API_TOKEN", "r8_test")
	t.Setenv("PROVIDER_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("PIPELINE_WORKERS", "8")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.AppEnv != "production" {
		t.Errorf("AppEnv = %q, want production", cfg.AppEnv)
	}
	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://localhost/parallax" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.ReplicateAPIToken != "r8_test" {
		t.Errorf("ReplicateAPIToken = %q", cfg.ReplicateAPIToken)
	}
	if cfg.ProviderPollInterval != 2*time.Second {
		t.Errorf("ProviderPollInterval = %v, want 2s", cfg.ProviderPollInterval)
	}
	if cfg.PipelineWorkers != 8 {
		t.Errorf("PipelineWorkers = %d, want 8", cfg.PipelineWorkers)
	}
}

func TestLoadConfigIgnoresMalformedInts(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("PIPELINE_WORKERS", "lots")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PipelineWorkers != 4 {
		t.Errorf("PipelineWorkers = %d, want default 4", cfg.PipelineWorkers)
	}
}
