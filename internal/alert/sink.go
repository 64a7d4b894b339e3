package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
	"github.com/vyrodovalexey/authguard/internal/retry"
)

// Sink receives alerts for downstream notification.
type Sink interface {
	Publish(ctx context.Context, a Alert) error
	Close() error
}

// LogSink writes alerts to the logger at warn level.
type LogSink struct {
	logger observability.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger observability.Logger) *LogSink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogSink{logger: logger}
}

// Publish implements Sink.
func (s *LogSink) Publish(_ context.Context, a Alert) error {
	s.logger.Warn("security alert",
		observability.String("alert_id", a.ID),
		observability.String("alert_type", a.Type),
		observability.String("severity", string(a.Severity)),
		observability.String("title", a.Title),
		observability.String("description", a.Description),
		observability.Any("data", a.Data),
	)
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes alerts as JSON messages keyed by alert type.
type KafkaSink struct {
	writer messageWriter
	policy retry.Policy
	logger observability.Logger
}

// NewKafkaSink creates a sink writing to cfg.Topic.
func NewKafkaSink(cfg config.KafkaConfig, logger observability.Logger) (*KafkaSink, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic required")
	}

	timeout := cfg.WriteTimeout.Duration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: timeout,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaSink(w, logger), nil
}

func newKafkaSink(w messageWriter, logger observability.Logger) *KafkaSink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &KafkaSink{writer: w, logger: logger}
	s.policy = retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		OnRetry: func(next int, err error, wait time.Duration) {
			s.logger.Debug("retrying alert publish",
				observability.Int("attempt", next),
				observability.Duration("wait", wait),
				observability.Error(err),
			)
		},
	}
	return s
}

// Publish implements Sink.
func (s *KafkaSink) Publish(ctx context.Context, a Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(a.Type),
		Value: payload,
		Time:  a.Timestamp,
		Headers: []kafka.Header{
			{Key: "severity", Value: []byte(a.Severity)},
		},
	}
	if err := retry.Do(ctx, s.policy, func() error {
		return s.writer.WriteMessages(ctx, msg)
	}); err != nil {
		return fmt.Errorf("publish alert to kafka: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// MultiSink fans an alert out to several sinks.
type MultiSink []Sink

// Publish implements Sink. Every sink is tried; errors are joined.
func (m MultiSink) Publish(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
