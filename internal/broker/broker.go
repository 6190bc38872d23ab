// Package broker wraps the Kafka client behind small producer/consumer
// interfaces. Events for one repository share a partition key, so the
// broker delivers them in publish order; delivery is at-least-once and
// downstream consumers deduplicate on delivery id.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// PublishTimeout bounds the wait for broker acknowledgment.
	PublishTimeout = 10 * time.Second

	// PublishAttempts is the internal retry budget before a publish
	// failure surfaces to the caller.
	PublishAttempts = 3

	// CommitInterval is how often consumed offsets are committed. On
	// crash, events inside this window replay.
	CommitInterval = 1 * time.Second
)

// Config identifies one broker connection.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string // consumers only
}

// Publisher publishes one JSON-encoded value keyed for per-repository
// ordering. Implemented by Producer and by test fakes.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}

// Message is one consumed broker record.
type Message struct {
	Key       []byte
	Value     []byte
	Partition int
	Offset    int64
}

// Consumer fetches the next record for this worker's consumer group.
type Consumer interface {
	Fetch(ctx context.Context) (Message, error)
	Close() error
}

// Producer is the Kafka-backed Publisher. Acknowledgment requires all
// replicas; the hash balancer keeps one key on one partition.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a producer for one topic. The underlying
// connection is established on first publish.
func NewProducer(cfg Config, logger *slog.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  PublishAttempts,
			WriteTimeout: PublishTimeout,
		},
		logger: logger,
	}
}

// Publish JSON-encodes value and writes it keyed by key, waiting at most
// PublishTimeout for acknowledgment.
func (p *Producer) Publish(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.writer.Topic, err)
	}

	p.logger.Info("published event", "topic", p.writer.Topic, "key", key)
	return nil
}

// Close flushes and releases the producer connection.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// GroupConsumer is the Kafka-backed Consumer. The named group splits
// partitions across worker processes so each event is handled by exactly
// one member; offsets auto-commit every CommitInterval.
type GroupConsumer struct {
	reader *kafka.Reader
}

// NewConsumer joins the consumer group on the input topic, starting from
// the latest offset for a fresh group.
func NewConsumer(cfg Config) *GroupConsumer {
	return &GroupConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			Topic:          cfg.Topic,
			CommitInterval: CommitInterval,
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Fetch blocks until the next record arrives or ctx is canceled.
func (c *GroupConsumer) Fetch(ctx context.Context) (Message, error) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Key:       m.Key,
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
	}, nil
}

// Close leaves the consumer group and releases the connection.
func (c *GroupConsumer) Close() error {
	return c.reader.Close()
}

// Ping dials the first broker to check connectivity, bounded by ctx.
// Used by the ingress health endpoint.
func Ping(ctx context.Context, cfg Config) error {
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("no broker addresses configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker: %w", err)
	}
	return conn.Close()
}
