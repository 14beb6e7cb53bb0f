package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Resolver.DefaultMode != "fuzzy" {
		t.Errorf("expected default resolver mode 'fuzzy', got '%s'", cfg.Resolver.DefaultMode)
	}
	if cfg.Resolver.FuzzyThreshold != 0.85 {
		t.Errorf("expected fuzzy threshold 0.85, got %v", cfg.Resolver.FuzzyThreshold)
	}
	if cfg.Resolver.MaxCooccurrenceEntities != 200 {
		t.Errorf("expected max_cooccurrence_entities 200, got %d", cfg.Resolver.MaxCooccurrenceEntities)
	}
	if cfg.Store.BusyTimeoutMs != 30000 {
		t.Errorf("expected busy_timeout_ms 30000, got %d", cfg.Store.BusyTimeoutMs)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoadFromPath_CreatesDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".docgraph", "config.yaml")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	if cfg.Resolver.DefaultMode != "fuzzy" {
		t.Errorf("expected default resolver mode 'fuzzy', got '%s'", cfg.Resolver.DefaultMode)
	}

	cfg2, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load existing config: %v", err)
	}
	if cfg2.Resolver.DefaultMode != cfg.Resolver.DefaultMode {
		t.Error("config values changed on reload")
	}
}

func TestValidate_RejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.Resolver.DefaultMode = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for bad resolver mode")
	}
}

func TestValidate_RejectsBatchSizeOverMax(t *testing.T) {
	cfg := Default()
	cfg.Classifier.BatchSize = cfg.Classifier.MaxBatchSize + 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for batch_size exceeding max_batch_size")
	}
}
