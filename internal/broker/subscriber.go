package broker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pixelframe/playerhub/internal/metrics"
)

const (
	defaultQueueSize      = 256
	defaultHandlerTimeout = 30 * time.Second
)

type Message struct {
	Topic     string
	Payload   []byte
	Duplicate bool
}

type HandlerFunc func(ctx context.Context, msg Message)

// Subscribable is the subscription side of a Client.
type Subscribable interface {
	Subscribe(filter string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(filter string) error
}

// Subscriber is one supervised loop over a topic filter. Each message runs
// in its own goroutine; ordering across messages is not preserved.
type Subscriber struct {
	client         Subscribable
	filter         string
	qos            byte
	handler        HandlerFunc
	queue          chan Message
	handlerTimeout time.Duration
}

type SubscriberOption func(*Subscriber)

func WithQueueSize(n int) SubscriberOption {
	return func(s *Subscriber) { s.queue = make(chan Message, n) }
}

func WithHandlerTimeout(d time.Duration) SubscriberOption {
	return func(s *Subscriber) { s.handlerTimeout = d }
}

func NewSubscriber(client Subscribable, filter string, handler HandlerFunc, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		client:         client,
		filter:         filter,
		qos:            QoSAtLeastOnce,
		handler:        handler,
		queue:          make(chan Message, defaultQueueSize),
		handlerTimeout: defaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run subscribes and dispatches messages until ctx is cancelled. It then
// unsubscribes, hands every message still queued to a handler and waits for
// all handlers before returning. Queued messages are already acknowledged to
// the broker, so they are not redelivered if dropped here.
func (s *Subscriber) Run(ctx context.Context) error {
	if err := s.client.Subscribe(s.filter, s.qos, s.enqueue); err != nil {
		return fmt.Errorf("failed to start subscriber for %s: %w", s.filter, err)
	}
	slog.Info("Subscriber started", "filter", s.filter)

	// Handlers outlive shutdown so they can finish and respond.
	handlerCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	dispatch := func(msg Message) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(handlerCtx, msg)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			if err := s.client.Unsubscribe(s.filter); err != nil {
				slog.Warn("Failed to unsubscribe", "filter", s.filter, "error", err)
			}
			if drained := s.drain(dispatch); drained > 0 {
				slog.Info("Handling queued messages before stopping", "filter", s.filter, "count", drained)
			}
			wg.Wait()
			slog.Info("Subscriber stopped", "filter", s.filter)
			return nil
		case msg := <-s.queue:
			dispatch(msg)
		}
	}
}

// drain dispatches whatever is queued right now without blocking.
func (s *Subscriber) drain(dispatch func(Message)) int {
	n := 0
	for {
		select {
		case msg := <-s.queue:
			dispatch(msg)
			n++
		default:
			return n
		}
	}
}

func (s *Subscriber) enqueue(_ mqtt.Client, m mqtt.Message) {
	msg := Message{Topic: m.Topic(), Payload: m.Payload(), Duplicate: m.Duplicate()}
	select {
	case s.queue <- msg:
	default:
		metrics.MessagesDropped.WithLabelValues(s.filter).Inc()
		slog.Warn("Subscriber queue full, dropping message", "filter", s.filter, "topic", msg.Topic)
	}
}

func (s *Subscriber) handle(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, s.handlerTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		metrics.HandlerDuration.WithLabelValues(s.filter).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			slog.Error("Handler panicked", "filter", s.filter, "topic", msg.Topic, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	s.handler(ctx, msg)
}
