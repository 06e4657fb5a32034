package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Publisher emits CloudEvents envelopes to the broker. Implementations must
// be safe for concurrent use; the service holds a single publisher for its
// lifetime.
type Publisher interface {
	// Publish wraps data in an envelope and writes it to topic. The message
	// key is the envelope subject when present, so events about the same
	// product land on the same partition in order.
	Publish(ctx context.Context, topic string, data any, opts PublishOptions) error

	// Close flushes buffered messages and releases the broker connection.
	Close() error
}

// PublishOptions carries the per-event envelope fields supplied by callers.
type PublishOptions struct {
	// CorrelationID propagates the id of the originating request or inbound
	// event. Empty means the event was not triggered by external input.
	CorrelationID string

	// Subject names the entity the event concerns, e.g. "product/{id}".
	Subject string
}

// KafkaPublisher writes envelopes through a single shared kafka.Writer with
// per-message topics.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher connected to the configured brokers.
// Topics are auto-created on first write so fresh environments need no
// provisioning step.
func NewKafkaPublisher(cfg *Config, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger,
	}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, data any, opts PublishOptions) error {
	envelope, err := NewEnvelope(topic, data, opts)
	if err != nil {
		return fmt.Errorf("failed to build envelope for topic %s: %w", topic, err)
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to serialize envelope for topic %s: %w", topic, err)
	}

	// Key by subject when callers set one; otherwise the envelope id spreads
	// unkeyed events across partitions.
	key := envelope.Subject
	if key == "" {
		key = envelope.ID
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: raw,
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}

	p.logger.Debug("event published",
		slog.String("topic", topic),
		slog.String("event_id", envelope.ID),
		slog.String("event_type", envelope.Type),
		slog.String("correlation_id", envelope.CorrelationID),
	)

	return nil
}

// Close implements Publisher.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close broker writer: %w", err)
	}

	return nil
}
