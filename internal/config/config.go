package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName                string        `mapstructure:"app_name"`
	AppVersion             string        `mapstructure:"app_version"`
	Env                    string        `mapstructure:"app_env"`
	LogLevel               string        `mapstructure:"log_level"`
	QueriesFile            string        `mapstructure:"queries_file"`
	Query                  string        `mapstructure:"query"`
	PublishersFile         string        `mapstructure:"publishers_file"`
	HarvestIntervalSeconds int64         `mapstructure:"harvest_interval"`
	HarvestInterval        time.Duration `mapstructure:"-"`
	QueryConcurrency       int           `mapstructure:"query_concurrency"`
	MetricsAddr            string        `mapstructure:"metrics_addr"`

	StorageType     string `mapstructure:"storage_type"`
	BBoltPath       string `mapstructure:"bbolt_path"`
	MongoURI        string `mapstructure:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection"`

	CrossrefBaseURL    string        `mapstructure:"crossref_base_url"`
	CrossrefMailto     string        `mapstructure:"crossref_mailto"`
	CrossrefPlusToken  string        `mapstructure:"crossref_plus_token"`
	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout        time.Duration `mapstructure:"-"`

	RequestIntervalMs int64         `mapstructure:"request_interval_ms"`
	RequestInterval   time.Duration `mapstructure:"-"`
	MaxRequests       int           `mapstructure:"max_requests"`
	MaxArticles       int           `mapstructure:"max_articles"`
	PageSize          int           `mapstructure:"page_size"`
	SortKey           string        `mapstructure:"sort_key"`
	RetryBudget       int           `mapstructure:"retry_budget"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "samvad-scholar-harvester")
	v.SetDefault("app_version", "dev")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("queries_file", "")
	v.SetDefault("query", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("harvest_interval", 0) // seconds, 0 = single pass
	v.SetDefault("query_concurrency", 2)
	v.SetDefault("metrics_addr", "")

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/articles.db")
	v.SetDefault("mongo_uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo_database", "scholar_harvester")
	v.SetDefault("mongo_collection", "articles")

	v.SetDefault("crossref_base_url", "https://api.crossref.org")
	v.SetDefault("crossref_mailto", "")
	v.SetDefault("crossref_plus_token", "")
	v.SetDefault("http_timeout_seconds", 30)

	v.SetDefault("request_interval_ms", 1000)
	v.SetDefault("max_requests", 50)
	v.SetDefault("max_articles", 50000)
	v.SetDefault("page_size", 1000)
	v.SetDefault("sort_key", "published")
	v.SetDefault("retry_budget", 3)
}

func (cfg *Config) finalize() error {
	if cfg.HarvestIntervalSeconds < 0 {
		return fmt.Errorf("invalid harvest_interval (must be zero or positive seconds)")
	}
	cfg.HarvestInterval = time.Duration(cfg.HarvestIntervalSeconds) * time.Second

	if cfg.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second

	if cfg.RequestIntervalMs <= 0 {
		return fmt.Errorf("invalid request_interval_ms (must be positive)")
	}
	cfg.RequestInterval = time.Duration(cfg.RequestIntervalMs) * time.Millisecond

	if cfg.MaxRequests <= 0 {
		return fmt.Errorf("invalid max_requests (must be positive)")
	}
	if cfg.MaxArticles <= 0 {
		return fmt.Errorf("invalid max_articles (must be positive)")
	}
	if cfg.PageSize <= 0 {
		return fmt.Errorf("invalid page_size (must be positive)")
	}
	if cfg.RetryBudget < 0 {
		return fmt.Errorf("invalid retry_budget (must not be negative)")
	}
	if cfg.QueryConcurrency <= 0 {
		cfg.QueryConcurrency = 1
	}

	cfg.Query = strings.TrimSpace(cfg.Query)
	cfg.QueriesFile = strings.TrimSpace(cfg.QueriesFile)
	if cfg.Query == "" && cfg.QueriesFile == "" {
		return fmt.Errorf("either query or queries_file must be set")
	}
	if strings.TrimSpace(cfg.CrossrefBaseURL) == "" {
		return fmt.Errorf("crossref_base_url must not be empty")
	}
	cfg.CrossrefBaseURL = strings.TrimRight(strings.TrimSpace(cfg.CrossrefBaseURL), "/")
	return nil
}
