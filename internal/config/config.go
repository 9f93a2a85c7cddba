// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port          string
	AllowedOrigin string
	DBPath        string
	Model         ModelConfig
	Search        SearchConfig
	Deliberation  DeliberationConfig
}

// ModelConfig configures the language-model gateway.
type ModelConfig struct {
	BaseURL string
	APIKey  string
	Name    string
	Timeout time.Duration
}

// SearchConfig configures the optional search gateway. An empty
// Endpoint disables the search sub-protocol entirely.
type SearchConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// DeliberationConfig tunes the scheduler and turn executor.
type DeliberationConfig struct {
	TurnPause          time.Duration
	EscalationPoll     time.Duration
	EscalationCeiling  time.Duration
	FileExcerptLimit   int
	MaxSearchesPerTurn int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		DBPath:        getEnv("DB_PATH", "./data/conclave.db"),
		Model: ModelConfig{
			BaseURL: getEnv("MODEL_BASE_URL", "http://localhost:11434/v1"),
			APIKey:  getEnv("MODEL_API_KEY", ""),
			Name:    getEnv("MODEL_NAME", "gpt-4o-mini"),
			Timeout: getEnvDuration("MODEL_TIMEOUT", 60*time.Second),
		},
		Search: SearchConfig{
			Endpoint: getEnv("SEARCH_ENDPOINT", ""),
			APIKey:   getEnv("SEARCH_API_KEY", ""),
			Timeout:  getEnvDuration("SEARCH_TIMEOUT", 15*time.Second),
		},
		Deliberation: DeliberationConfig{
			TurnPause:          getEnvDuration("TURN_PAUSE", time.Second),
			EscalationPoll:     getEnvDuration("ESCALATION_POLL_INTERVAL", 2*time.Second),
			EscalationCeiling:  getEnvDuration("ESCALATION_WAIT_CEILING", 5*time.Minute),
			FileExcerptLimit:   getEnvInt("FILE_EXCERPT_LIMIT", 10000),
			MaxSearchesPerTurn: getEnvInt("MAX_SEARCHES_PER_TURN", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Model.BaseURL == "" {
		return fmt.Errorf("MODEL_BASE_URL cannot be empty")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("MODEL_NAME cannot be empty")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be > 0")
	}
	if c.Deliberation.EscalationPoll <= 0 {
		return fmt.Errorf("ESCALATION_POLL_INTERVAL must be > 0")
	}
	if c.Deliberation.EscalationCeiling < c.Deliberation.EscalationPoll {
		return fmt.Errorf("ESCALATION_WAIT_CEILING must be >= ESCALATION_POLL_INTERVAL")
	}
	if c.Deliberation.FileExcerptLimit <= 0 {
		return fmt.Errorf("FILE_EXCERPT_LIMIT must be > 0")
	}
	if c.Deliberation.MaxSearchesPerTurn <= 0 {
		return fmt.Errorf("MAX_SEARCHES_PER_TURN must be > 0")
	}
	return nil
}

// SearchEnabled returns true if a search gateway is configured.
func (c *Config) SearchEnabled() bool {
	return c.Search.Endpoint != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
