package notifier

import (
	"context"

	"pulseboard/internal/logger"
	"pulseboard/internal/models"
)

// LogSink writes alert events to the application log. Used in development
// and as a fallback when no external sink is configured.
type LogSink struct{}

// NewLogSink creates a log-only notification sink.
func NewLogSink() *LogSink { return &LogSink{} }

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Send implements Sink.
func (s *LogSink) Send(ctx context.Context, ev models.AlertEvent) error {
	log := logger.WithComponent("notifier")
	log.Warn().
		Str("rule_id", ev.RuleID).
		Str("level", string(ev.Level)).
		Str("state", ev.State).
		Float64("value", ev.Value).
		Msg(ev.Message)
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }
