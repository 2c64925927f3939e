package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/workloop/pkg/logger"
	"github.com/okian/workloop/pkg/metrics"
)

// Kafka defaults.
const (
	DefaultMaxAttempts  = 3
	DefaultWriteTimeout = 5 * time.Second
	defaultBackoff      = 100 * time.Millisecond
	maxBackoff          = 2 * time.Second
)

// ErrPublish is returned when an event could not be delivered.
var ErrPublish = errors.New("publish events")

// MessageWriter is the subset of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to one topic with bounded retries.
type Kafka struct {
	writer       MessageWriter
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	logger       logger.Logger
}

// KafkaOption applies a configuration option to the Kafka publisher.
type KafkaOption func(*Kafka)

// WithWriter replaces the kafka.Writer built from the brokers.
func WithWriter(w MessageWriter) KafkaOption {
	return func(k *Kafka) {
		if w != nil {
			k.writer = w
		}
	}
}

// WithMaxAttempts sets how many times a batch is tried.
func WithMaxAttempts(n int) KafkaOption {
	return func(k *Kafka) {
		if n > 0 {
			k.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay; it doubles up to two seconds.
func WithBackoff(d time.Duration) KafkaOption {
	return func(k *Kafka) {
		if d >= 0 {
			k.backoff = d
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) KafkaOption {
	return func(k *Kafka) {
		if l != nil {
			k.logger = l
		}
	}
}

// NewKafka creates a publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string, opts ...KafkaOption) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: at least one broker required", ErrPublish)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: topic required", ErrPublish)
	}
	k := &Kafka{
		maxAttempts:  DefaultMaxAttempts,
		writeTimeout: DefaultWriteTimeout,
		backoff:      defaultBackoff,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.writer == nil {
		k.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: k.writeTimeout,
			RequiredAcks: kafka.RequireOne,
		}
	}
	return k, nil
}

// Publish writes events as one batch, retrying with exponential backoff.
func (k *Kafka) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("%w: marshal %s: %w", ErrPublish, ev.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.WorkerID),
			Value: value,
			Time:  ev.OccurredAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
			},
		})
	}

	var lastErr error
	backoff := k.backoff
	for attempt := 1; attempt <= k.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, k.writeTimeout)
		err := k.writer.WriteMessages(attemptCtx, msgs...)
		cancel()
		if err == nil {
			for _, ev := range events {
				metrics.RecordEventPublished(ev.Type, "ok")
			}
			return nil
		}
		lastErr = err
		k.logger.Warn(ctx, "event publish attempt failed",
			logger.Int("attempt", attempt),
			logger.Int("events", len(events)),
			logger.Error(err),
		)
		if attempt == k.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fail(events, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
	return fail(events, fmt.Errorf("after %d attempts: %w", k.maxAttempts, lastErr))
}

func fail(events []Event, err error) error {
	for _, ev := range events {
		metrics.RecordEventPublished(ev.Type, "error")
	}
	return fmt.Errorf("%w: %w", ErrPublish, err)
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
