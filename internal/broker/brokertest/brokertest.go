// Package brokertest provides an in-memory broker for pipeline tests.
package brokertest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deploypipe/internal/broker"
)

// Broker is an in-memory stand-in for one topic. It implements both
// broker.Publisher and broker.Consumer: published messages are appended
// in order and Fetch pops them FIFO.
type Broker struct {
	mu       sync.Mutex
	messages []broker.Message
	closed   bool

	// FailPublish makes every Publish return an error, for exercising
	// the transport-failure paths.
	FailPublish bool
}

// New creates an empty in-memory broker.
func New() *Broker {
	return &Broker{}
}

// Publish appends a JSON-encoded message, mirroring the real producer.
func (b *Broker) Publish(ctx context.Context, key string, value any) error {
	if b.FailPublish {
		return fmt.Errorf("publish failed: broker unavailable")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, broker.Message{
		Key:    []byte(key),
		Value:  data,
		Offset: int64(len(b.messages)),
	})
	return nil
}

// Fetch pops the oldest message. Unlike the real consumer it never
// blocks: an empty topic reports context.Canceled so a worker loop
// draining the fake exits once everything queued has been processed.
func (b *Broker) Fetch(ctx context.Context) (broker.Message, error) {
	if err := ctx.Err(); err != nil {
		return broker.Message{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		return broker.Message{}, context.Canceled
	}
	msg := b.messages[0]
	b.messages = b.messages[1:]
	return msg, nil
}

// Messages returns a copy of everything currently queued.
func (b *Broker) Messages() []broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broker.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Len returns the number of queued messages.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}

// Close marks the broker closed.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *Broker) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
