// Package config loads service configuration from defaults, an optional
// YAML file and RECENGINE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes the environment variables read by Load.
const EnvPrefix = "RECENGINE_"

// PathEnvVar names the config file when Load gets an empty path.
const PathEnvVar = EnvPrefix + "CONFIG"

type ServiceConfig struct {
	Name            string        `koanf:"name"`
	HTTPAddr        string        `koanf:"http_addr"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type NATSConfig struct {
	Enabled            bool   `koanf:"enabled"`
	URL                string `koanf:"url"`
	QueueGroup         string `koanf:"queue_group"`
	SubjectRequests    string `koanf:"subject_requests"`
	SubjectFeedback    string `koanf:"subject_feedback"`
	SubjectEscalations string `koanf:"subject_escalations"`
}

type RulesConfig struct {
	CatalogPath string `koanf:"catalog_path"`
}

type RankingConfig struct {
	StrictAllergyMode bool `koanf:"strict_allergy_mode"`
	TopK              int  `koanf:"top_k"`
}

// StorageConfig selects Postgres when a DSN is set and the in-memory store
// otherwise. ProductsPath seeds the product catalog on startup.
type StorageConfig struct {
	PostgresDSN  string `koanf:"postgres_dsn"`
	Migrate      bool   `koanf:"migrate"`
	ProductsPath string `koanf:"products_path"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type Config struct {
	Service ServiceConfig `koanf:"service"`
	NATS    NATSConfig    `koanf:"nats"`
	Rules   RulesConfig   `koanf:"rules"`
	Ranking RankingConfig `koanf:"ranking"`
	Storage StorageConfig `koanf:"storage"`
	Logging LoggingConfig `koanf:"logging"`
}

func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "recengine",
			HTTPAddr:        ":8080",
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:            false,
			URL:                "nats://127.0.0.1:4222",
			QueueGroup:         "recengine",
			SubjectRequests:    "recommend.requests",
			SubjectFeedback:    "feedback.submitted",
			SubjectEscalations: "recommend.escalations",
		},
		Rules: RulesConfig{
			CatalogPath: "configs/rules/catalog.yaml",
		},
		Ranking: RankingConfig{
			StrictAllergyMode: false,
			TopK:              5,
		},
		Storage: StorageConfig{
			Migrate:      true,
			ProductsPath: "configs/products/catalog.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. An empty path falls back to PathEnvVar;
// if neither names a file only defaults and environment apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKeys maps environment suffixes to config keys.
var envKeys = map[string]string{
	"http_addr":           "service.http_addr",
	"request_timeout":     "service.request_timeout",
	"shutdown_timeout":    "service.shutdown_timeout",
	"nats_enabled":        "nats.enabled",
	"nats_url":            "nats.url",
	"nats_queue_group":    "nats.queue_group",
	"catalog_path":        "rules.catalog_path",
	"strict_allergy_mode": "ranking.strict_allergy_mode",
	"top_k":               "ranking.top_k",
	"postgres_dsn":        "storage.postgres_dsn",
	"db_migrate":          "storage.migrate",
	"products_path":       "storage.products_path",
	"log_level":           "logging.level",
	"log_format":          "logging.format",
}

// envKey turns RECENGINE_TOP_K into ranking.top_k. Unknown variables map to
// the empty key and are dropped.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return envKeys[key]
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Service.HTTPAddr) == "" {
		return fmt.Errorf("service.http_addr is required")
	}
	if strings.TrimSpace(c.Rules.CatalogPath) == "" {
		return fmt.Errorf("rules.catalog_path is required")
	}
	if c.Ranking.TopK < 1 {
		return fmt.Errorf("ranking.top_k must be at least 1, got %d", c.Ranking.TopK)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
