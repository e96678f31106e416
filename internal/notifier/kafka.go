package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"pulseboard/internal/models"
)

// Kafka sink errors
var (
	ErrSinkClosed      = errors.New("kafka sink is closed")
	ErrSerializeFailed = errors.New("failed to serialize alert event")
)

// KafkaConfig configures the Kafka alert sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// KafkaSink publishes alert events to a Kafka topic, partitioned by rule id
// so per-rule ordering is preserved for downstream consumers.
type KafkaSink struct {
	cfg    KafkaConfig
	writer *kafka.Writer
	closed atomic.Bool

	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewKafkaSink creates a Kafka-backed notification sink.
func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 250 * time.Millisecond
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // partition by key
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false, // sync for reliability
	}

	return &KafkaSink{cfg: cfg, writer: writer}, nil
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Send publishes the event, retrying with linear backoff.
func (s *KafkaSink) Send(ctx context.Context, ev models.AlertEvent) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.RuleID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "rule_id", Value: []byte(ev.RuleID)},
			{Key: "level", Value: []byte(ev.Level)},
			{Key: "state", Value: []byte(ev.State)},
		},
		Time: ev.FiredAt,
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				s.failed.Add(1)
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
			}
		}
		if lastErr = s.writer.WriteMessages(ctx, msg); lastErr == nil {
			s.sent.Add(1)
			return nil
		}
	}

	s.failed.Add(1)
	return fmt.Errorf("kafka publish after %d attempt(s): %w", s.cfg.MaxRetries+1, lastErr)
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.writer.Close()
}

// Stats returns delivery counters.
func (s *KafkaSink) Stats() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}
