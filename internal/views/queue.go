package views

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Queue is the durable handoff for accepted views. Persistence happens on
// the consuming side.
type Queue interface {
	Enqueue(ctx context.Context, ev Event) error
}

var ErrQueueFull = errors.New("view queue full")

const duplicateWindow = 2 * time.Minute

// JetStreamQueue publishes events to a JetStream stream. The event id is
// sent as Nats-Msg-Id so the stream drops republished copies.
type JetStreamQueue struct {
	js      jetstream.JetStream
	subject string
}

func NewJetStreamQueue(js jetstream.JetStream, subject string) *JetStreamQueue {
	return &JetStreamQueue{js: js, subject: subject}
}

// EnsureStream creates or updates the stream that captures subject.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, subject string) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{subject},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.WorkQueuePolicy,
		Duplicates: duplicateWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create view stream %s: %w", name, err)
	}
	return stream, nil
}

func (q *JetStreamQueue) Enqueue(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode view event: %w", err)
	}

	ack, err := q.js.Publish(ctx, q.subject, data, jetstream.WithMsgID(ev.ID))
	if err != nil {
		return fmt.Errorf("failed to enqueue view event: %w", err)
	}
	if ack.Duplicate {
		slog.Debug("View event already queued", "event_id", ev.ID, "stream", ack.Stream)
	}
	return nil
}

// MemoryQueue buffers events in process. It is used when no NATS server is
// configured and in tests.
type MemoryQueue struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

func NewMemoryQueue(limit int) *MemoryQueue {
	return &MemoryQueue{limit: limit}
}

func (q *MemoryQueue) Enqueue(_ context.Context, ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.events) >= q.limit {
		return ErrQueueFull
	}
	q.events = append(q.events, ev)
	return nil
}

// Drain returns and clears the buffered events.
func (q *MemoryQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	events := q.events
	q.events = nil
	return events
}
