package models

import (
	"errors"
	"time"
)

// SourceKind distinguishes externally-fed sources from computed monitors.
type SourceKind string

const (
	// KindRaw is a source fed by an external webhook.
	KindRaw SourceKind = "raw"
	// KindComputed is a monitor derived from a formula.
	KindComputed SourceKind = "computed"
)

// Level represents alert severity, ordered low < medium < high < critical.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Rank returns the ordering rank of a severity level. Unknown levels rank
// below low so they never outrank a valid one.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

// IsValid checks if the severity level is valid
func (l Level) IsValid() bool {
	return l.Rank() > 0
}

// Source is any named producer of a numeric value: a raw webhook feed or a
// computed monitor. The value is absent until the first ingest/computation.
type Source struct {
	ID        string     `json:"id"`
	Kind      SourceKind `json:"kind"`
	Value     float64    `json:"value"`
	HasValue  bool       `json:"has_value"`
	UpdatedAt time.Time  `json:"updated_at"`

	// LastGoodAt is the last successful computation time. For a monitor
	// stuck on an evaluation error it lags UpdatedAt, which is how the
	// dashboard renders the stale flag.
	LastGoodAt time.Time `json:"last_good_at"`
}

// Monitor is a computed Source definition.
type Monitor struct {
	ID            string `json:"id" yaml:"id"`
	Formula       string `json:"formula" yaml:"formula"`
	DecimalPlaces int    `json:"decimal_places" yaml:"decimal_places"`
	Unit          string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Enabled       bool   `json:"enabled" yaml:"enabled"`
}

// AlertRule is a named boolean condition with severity and cooldown.
type AlertRule struct {
	ID              string `json:"id" yaml:"id"`
	Condition       string `json:"condition" yaml:"condition"`
	Level           Level  `json:"level" yaml:"level"`
	CooldownSeconds int    `json:"cooldown_seconds" yaml:"cooldown_seconds"`
	Enabled         bool   `json:"enabled" yaml:"enabled"`
}

// Cooldown returns the rule cooldown as a duration.
func (r AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// Validation errors
var (
	ErrEmptyMonitorID   = errors.New("monitor ID cannot be empty")
	ErrEmptyFormula     = errors.New("monitor formula cannot be empty")
	ErrEmptyRuleID      = errors.New("rule ID cannot be empty")
	ErrEmptyCondition   = errors.New("rule condition cannot be empty")
	ErrInvalidLevel     = errors.New("invalid severity level")
	ErrNegativeCooldown = errors.New("cooldown cannot be negative")
)

// Validate checks the structural fields of a monitor definition. Formula
// syntax and cycle safety are checked by the engine at registration.
func (m *Monitor) Validate() error {
	if m.ID == "" {
		return ErrEmptyMonitorID
	}
	if m.Formula == "" {
		return ErrEmptyFormula
	}
	return nil
}

// Validate checks the structural fields of an alert rule.
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return ErrEmptyRuleID
	}
	if r.Condition == "" {
		return ErrEmptyCondition
	}
	if !r.Level.IsValid() {
		return ErrInvalidLevel
	}
	if r.CooldownSeconds < 0 {
		return ErrNegativeCooldown
	}
	return nil
}

// AlertEvent is one notification-worthy alert transition produced by the
// engine, consumed by notification sinks and the history log.
type AlertEvent struct {
	ID       string    `json:"id"`
	RuleID   string    `json:"rule_id"`
	Level    Level     `json:"level"`
	State    string    `json:"state"` // "firing" | "resolved"
	Message  string    `json:"message"`
	Value    float64   `json:"value"`
	FiredAt  time.Time `json:"fired_at"`
}
