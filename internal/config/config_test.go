package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUERY", "graph neural networks")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RequestInterval != time.Second {
		t.Errorf("RequestInterval = %v want 1s", cfg.RequestInterval)
	}
	if cfg.MaxRequests != 50 || cfg.MaxArticles != 50000 || cfg.PageSize != 1000 {
		t.Errorf("unexpected ceilings %+v", cfg)
	}
	if cfg.SortKey != "published" {
		t.Errorf("SortKey = %q", cfg.SortKey)
	}
	if cfg.StorageType != "bbolt" {
		t.Errorf("StorageType = %q", cfg.StorageType)
	}
	if cfg.HarvestInterval != 0 {
		t.Errorf("expected single pass by default, got %v", cfg.HarvestInterval)
	}
	if cfg.Query != "graph neural networks" {
		t.Errorf("Query = %q", cfg.Query)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QUERIES_FILE", "./configs/queries.yaml")
	t.Setenv("REQUEST_INTERVAL_MS", "250")
	t.Setenv("MAX_ARTICLES", "10")
	t.Setenv("CROSSREF_BASE_URL", "https://api.example.org/")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RequestInterval != 250*time.Millisecond {
		t.Errorf("RequestInterval = %v", cfg.RequestInterval)
	}
	if cfg.MaxArticles != 10 {
		t.Errorf("MaxArticles = %d", cfg.MaxArticles)
	}
	if cfg.CrossrefBaseURL != "https://api.example.org" {
		t.Errorf("CrossrefBaseURL = %q", cfg.CrossrefBaseURL)
	}
}

func TestLoadRejectsMissingQuery(t *testing.T) {
	if _, err := load(viper.New()); err == nil {
		t.Fatalf("expected error without query or queries_file")
	}
}

func TestLoadRejectsInvalidCeilings(t *testing.T) {
	t.Setenv("QUERY", "x")
	t.Setenv("MAX_REQUESTS", "0")
	if _, err := load(viper.New()); err == nil {
		t.Fatalf("expected error for max_requests=0")
	}
}

func TestLoadRejectsZeroRequestInterval(t *testing.T) {
	t.Setenv("QUERY", "x")
	t.Setenv("REQUEST_INTERVAL_MS", "0")
	if _, err := load(viper.New()); err == nil {
		t.Fatalf("expected error for request_interval_ms=0")
	}
}
