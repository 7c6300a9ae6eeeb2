// Package config loads the pipeline's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration.
type Config struct {
	Database  Database  `yaml:"database"`
	Sources   Sources   `yaml:"sources"`
	Sentiment Sentiment `yaml:"sentiment"`
	Model     Model     `yaml:"model"`
	Server    Server    `yaml:"server"`
	LogLevel  string    `yaml:"log_level"`
}

// Database selects the tabular store.
type Database struct {
	Driver string `yaml:"driver"` // sqlite or postgres
	DSN    string `yaml:"dsn"`
}

// Sources points at the raw input files.
type Sources struct {
	Logistics         string   `yaml:"logistics"`
	LogisticsEncoding string   `yaml:"logistics_encoding"`
	News              string   `yaml:"news"`
	NewsCategories    []string `yaml:"news_categories"`
}

// Sentiment configures the headline classifier.
type Sentiment struct {
	Provider string        `yaml:"provider"` // http or lexicon
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	MaxChars int           `yaml:"max_chars"`
	Workers  int           `yaml:"workers"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Model configures training and where the artifact lives.
type Model struct {
	Path         string  `yaml:"path"`
	Estimator    string  `yaml:"estimator"` // gbt or linear
	Seed         uint64  `yaml:"seed"`
	TestFraction float64 `yaml:"test_fraction"`
	MinRows      int     `yaml:"min_rows"`
}

// Server configures the inference surface.
type Server struct {
	Addr          string `yaml:"addr"`
	TopCategories int    `yaml:"top_categories"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: Database{
			Driver: "sqlite",
			DSN:    "data/processed/supply_chain.db",
		},
		Sources: Sources{
			Logistics:         "data/raw/DataCoSupplyChainDataset.csv",
			LogisticsEncoding: "iso-8859-1",
			News:              "data/raw/News_Category_Dataset_v3.json",
			NewsCategories:    []string{"BUSINESS", "WORLD NEWS", "TECH"},
		},
		Sentiment: Sentiment{
			Provider: "lexicon",
			MaxChars: 512,
			Workers:  8,
			Timeout:  30 * time.Second,
		},
		Model: Model{
			Path:         "data/processed/supply_chain_model.json",
			Estimator:    "gbt",
			Seed:         42,
			TestFraction: 0.2,
			MinRows:      10,
		},
		Server: Server{
			Addr:          ":8090",
			TopCategories: 10,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SUPPLYCHAIN_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("SENTIMENT_API_TOKEN"); v != "" {
		cfg.Sentiment.Token = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if len(cfg.Sources.NewsCategories) == 0 {
		return fmt.Errorf("sources.news_categories must not be empty")
	}
	switch cfg.Sentiment.Provider {
	case "lexicon":
	case "http":
		if cfg.Sentiment.Endpoint == "" {
			return fmt.Errorf("sentiment.endpoint is required when provider is http")
		}
	default:
		return fmt.Errorf("sentiment.provider %q is not supported", cfg.Sentiment.Provider)
	}
	if cfg.Sentiment.MaxChars <= 0 {
		return fmt.Errorf("sentiment.max_chars must be positive")
	}
	if cfg.Sentiment.Workers <= 0 {
		return fmt.Errorf("sentiment.workers must be positive")
	}
	switch cfg.Model.Estimator {
	case "gbt", "linear":
	default:
		return fmt.Errorf("model.estimator %q is not supported", cfg.Model.Estimator)
	}
	if cfg.Model.TestFraction <= 0 || cfg.Model.TestFraction >= 1 {
		return fmt.Errorf("model.test_fraction must be in (0, 1)")
	}
	if cfg.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if cfg.Server.TopCategories <= 0 {
		return fmt.Errorf("server.top_categories must be positive")
	}
	return nil
}
