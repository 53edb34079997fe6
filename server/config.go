package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full feedpipe configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	DBPath         string        `yaml:"db_path"`
	FetchInterval  time.Duration `yaml:"fetch_interval"`
	Concurrency    int           `yaml:"concurrency"`
	RecommendLimit int           `yaml:"recommend_limit"`
	PageSize       int           `yaml:"page_size"`
	UserAgent      string        `yaml:"user_agent"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:         ":8080",
		DBPath:         "feedpipe.db",
		FetchInterval:  30 * time.Minute,
		Concurrency:    4,
		RecommendLimit: 3,
		PageSize:       20,
		UserAgent:      "feedpipe/1.0",
	}
}

// LoadConfig reads and parses a YAML config file, merged over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.FetchInterval <= 0 {
		return fmt.Errorf("fetch_interval must be > 0")
	}
	if c.RecommendLimit <= 0 {
		return fmt.Errorf("recommend_limit must be > 0")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be > 0")
	}
	return nil
}
