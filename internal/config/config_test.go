package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pulseboard/internal/config"
	"pulseboard/internal/models"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := config.FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.TickInterval)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("KafkaBrokers = %v, want empty (sink disabled)", cfg.KafkaBrokers)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PULSEBOARD_HTTP_ADDR", ":9090")
	t.Setenv("PULSEBOARD_TICK_INTERVAL", "5s")
	t.Setenv("PULSEBOARD_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := config.FromEnv()
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.TickInterval != 5*time.Second {
		t.Errorf("TickInterval = %v", cfg.TickInterval)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
}

const sampleDefinitions = `
monitors:
  - id: spread
    formula: "${webhook:btc} - ${webhook:eth}"
    decimal_places: 2
    unit: USD
    enabled: true
rules:
  - id: spread-high
    condition: "${monitor:spread} > 40000"
    level: high
    cooldown_seconds: 300
    enabled: true
`

func writeDefinitions(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "definitions.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadDefinitions(t *testing.T) {
	defs, err := config.LoadDefinitions(writeDefinitions(t, sampleDefinitions))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(defs.Monitors) != 1 {
		t.Fatalf("monitors = %d, want 1", len(defs.Monitors))
	}
	m := defs.Monitors[0]
	if m.ID != "spread" || m.Formula != "${webhook:btc} - ${webhook:eth}" || !m.Enabled {
		t.Errorf("monitor = %+v", m)
	}

	if len(defs.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(defs.Rules))
	}
	r := defs.Rules[0]
	if r.Level != models.LevelHigh || r.CooldownSeconds != 300 {
		t.Errorf("rule = %+v", r)
	}
}

func TestLoadDefinitionsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", ":\n  - ["},
		{"missing formula", "monitors:\n  - id: m\n"},
		{"bad level", "rules:\n  - id: r\n    condition: \"1 > 0\"\n    level: urgent\n"},
		{"negative cooldown", "rules:\n  - id: r\n    condition: \"1 > 0\"\n    level: low\n    cooldown_seconds: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.LoadDefinitions(writeDefinitions(t, tt.content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadDefinitionsMissingFile(t *testing.T) {
	if _, err := config.LoadDefinitions(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
