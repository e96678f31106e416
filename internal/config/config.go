package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pulseboard/internal/models"
)

// Config holds runtime configuration for the server. Values come from the
// environment; monitor and rule definitions come from the YAML file at
// DefinitionsPath.
type Config struct {
	// HTTPAddr is the listen address for ingest, admin, and metrics.
	HTTPAddr string
	// LogLevel is a zerolog level name.
	LogLevel string
	// TickInterval drives the periodic full recompute pass.
	TickInterval time.Duration
	// DefinitionsPath is the YAML file of declarative monitors and rules.
	// Empty disables declarative loading.
	DefinitionsPath string
	// HistoryPath is the SQLite alert history database file.
	HistoryPath string

	// Kafka notification sink. Disabled when no brokers are set.
	KafkaBrokers []string
	KafkaTopic   string

	// WebhookURL is a generic HTTP notification target. Empty disables it.
	WebhookURL string
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		HTTPAddr:     ":8080",
		LogLevel:     "info",
		TickInterval: 30 * time.Second,
		HistoryPath:  "data/history.db",
		KafkaTopic:   "pulseboard.alerts",
	}
}

// FromEnv builds the config from environment variables, falling back to
// defaults for anything unset.
func FromEnv() *Config {
	cfg := Default()

	if v := os.Getenv("PULSEBOARD_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("PULSEBOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PULSEBOARD_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if v := os.Getenv("PULSEBOARD_DEFINITIONS"); v != "" {
		cfg.DefinitionsPath = v
	}
	if v := os.Getenv("PULSEBOARD_HISTORY_PATH"); v != "" {
		cfg.HistoryPath = v
	}
	if v := os.Getenv("PULSEBOARD_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PULSEBOARD_KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	cfg.WebhookURL = os.Getenv("PULSEBOARD_WEBHOOK_URL")

	return cfg
}

// Definitions is the declarative set of monitors and alert rules loaded
// from YAML. Each entry still goes through full engine validation (parse
// and cycle check) when applied.
type Definitions struct {
	Monitors []models.Monitor   `yaml:"monitors"`
	Rules    []models.AlertRule `yaml:"rules"`
}

// LoadDefinitions reads and parses the definitions file.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}

	for i := range defs.Monitors {
		if err := defs.Monitors[i].Validate(); err != nil {
			return nil, fmt.Errorf("monitor %d (%q): %w", i, defs.Monitors[i].ID, err)
		}
	}
	for i := range defs.Rules {
		if err := defs.Rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, defs.Rules[i].ID, err)
		}
	}
	return &defs, nil
}
