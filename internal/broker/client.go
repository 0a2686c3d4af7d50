package broker

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pixelframe/playerhub/internal/metrics"
)

const (
	QoSAtLeastOnce byte = 1

	defaultPublishRetries = 3
	defaultPublishTimeout = 5 * time.Second
	initialDelay          = 100 * time.Millisecond
	maxDelay              = 2 * time.Second
	maxReconnectDelay     = 30 * time.Second
	connectTimeout        = 10 * time.Second
	subscribeTimeout      = 10 * time.Second
	disconnectQuiesceMs   = 250
)

var (
	ErrNotConnected   = errors.New("broker client not connected")
	errPublishTimeout = errors.New("timed out waiting for publish acknowledgement")
)

type Config struct {
	URL            string        `mapstructure:"url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Namespace      string        `mapstructure:"namespace"`
	ClientIDPrefix string        `mapstructure:"client_id_prefix"`
	PublishRetries int           `mapstructure:"publish_retries"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	CAFile         string        `mapstructure:"ca_file"`
	PublicHost     string        `mapstructure:"public_host"`
	PublicPort     int           `mapstructure:"public_port"`
}

type Role string

const (
	RolePublisher Role = "publisher"
	RoleRequests  Role = "requests"
	RoleStatus    Role = "status"
	RoleViews     Role = "views"
	RoleAdmin     Role = "admin"
)

// Publisher is the send side of a broker connection. A false return means
// the broker never acknowledged the message; callers treat delivery as best
// effort either way.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) bool
}

// ClientFactory builds the underlying paho client.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

type Option func(*Client)

func WithClientFactory(f ClientFactory) Option {
	return func(c *Client) { c.factory = f }
}

func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(c *Client) { c.tlsConfig = tlsConfig }
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// Client owns one broker connection for a single role. Subscriptions are
// remembered and replayed on every (re)connect; paho's own session resume
// is disabled so a filter is never subscribed twice.
type Client struct {
	cfg       Config
	role      Role
	clientID  string
	factory   ClientFactory
	tlsConfig *tls.Config

	client mqtt.Client

	mu   sync.Mutex
	subs map[string]subscription
}

func NewClient(cfg Config, role Role, opts ...Option) *Client {
	if cfg.PublishRetries <= 0 {
		cfg.PublishRetries = defaultPublishRetries
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.ClientIDPrefix == "" {
		cfg.ClientIDPrefix = "playerhub"
	}

	c := &Client{
		cfg:      cfg,
		role:     role,
		clientID: fmt.Sprintf("%s-%s-%s", cfg.ClientIDPrefix, role, randomSuffix()),
		factory:  mqtt.NewClient,
		subs:     make(map[string]subscription),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = c.factory(c.clientOptions())
	return c
}

func (c *Client) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.URL).
		SetClientID(c.clientID).
		SetCleanSession(true).
		SetResumeSubs(false).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectDelay).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("Broker connection lost", "role", c.role, "error", err)
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			slog.Info("Reconnecting to broker", "role", c.role)
		})

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	if c.tlsConfig != nil {
		opts.SetTLSConfig(c.tlsConfig)
	}
	return opts
}

// Connect dials the broker, retrying with exponential backoff until ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = maxReconnectDelay
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		token := c.client.Connect()
		if !token.WaitTimeout(connectTimeout) {
			return fmt.Errorf("timed out connecting to %s", c.cfg.URL)
		}
		return token.Error()
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		slog.Error("Broker connection failed", "role", c.role, "error", err, "retry_in", next)
	})
	if err != nil {
		return fmt.Errorf("failed to connect %s client: %w", c.role, err)
	}

	slog.Info("Connected to broker", "role", c.role, "client_id", c.clientID, "url", c.cfg.URL)
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for filter, sub := range c.subs {
		subs[filter] = sub
	}
	c.mu.Unlock()

	for filter, sub := range subs {
		if err := c.subscribe(client, filter, sub); err != nil {
			slog.Error("Failed to restore subscription", "role", c.role, "filter", filter, "error", err)
		}
	}
	if len(subs) > 0 {
		slog.Info("Restored subscriptions", "role", c.role, "count", len(subs))
	}
}

// Subscribe registers handler for filter. Subscribing an already known
// filter replaces its handler.
func (c *Client) Subscribe(filter string, qos byte, handler mqtt.MessageHandler) error {
	sub := subscription{qos: qos, handler: handler}

	c.mu.Lock()
	c.subs[filter] = sub
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		// onConnect picks it up.
		return nil
	}
	return c.subscribe(c.client, filter, sub)
}

func (c *Client) subscribe(client mqtt.Client, filter string, sub subscription) error {
	token := client.Subscribe(filter, sub.qos, sub.handler)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("timed out subscribing to %s", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	slog.Debug("Subscribed", "role", c.role, "filter", filter)
	return nil
}

func (c *Client) Unsubscribe(filter string) error {
	c.mu.Lock()
	_, known := c.subs[filter]
	delete(c.subs, filter)
	c.mu.Unlock()

	if !known || !c.client.IsConnectionOpen() {
		return nil
	}

	token := c.client.Unsubscribe(filter)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("timed out unsubscribing from %s", filter)
	}
	return token.Error()
}

// Publish sends payload and waits for the broker acknowledgement, retrying
// with exponential backoff. It never returns an error.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialDelay
	b.MaxInterval = maxDelay

	attempts := 0
	op := func() error {
		attempts++
		if !c.client.IsConnectionOpen() {
			return ErrNotConnected
		}
		token := c.client.Publish(topic, qos, retain, payload)
		if !token.WaitTimeout(c.cfg.PublishTimeout) {
			return errPublishTimeout
		}
		return token.Error()
	}

	retries := uint64(c.cfg.PublishRetries - 1)
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
	if err != nil {
		metrics.PublishFailures.WithLabelValues(string(c.role)).Inc()
		slog.Warn("Publish failed", "role", c.role, "topic", topic, "attempts", attempts, "error", err)
		return false
	}

	slog.Debug("Published", "role", c.role, "topic", topic, "bytes", len(payload))
	return true
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *Client) Role() Role {
	return c.role
}

func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesceMs)
	slog.Info("Disconnected from broker", "role", c.role)
}

func randomSuffix() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
