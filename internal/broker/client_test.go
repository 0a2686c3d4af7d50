package broker

import (
	"context"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(mqtt.Client, mqtt.Message) {}

func TestNewClient_ClientID(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883", ClientIDPrefix: "hub"}, RoleRequests)

	assert.True(t, strings.HasPrefix(fake.opts.ClientID, "hub-requests-"))
	assert.True(t, fake.opts.CleanSession)
	assert.False(t, fake.opts.ResumeSubs)
	assert.True(t, fake.opts.AutoReconnect)
	assert.Equal(t, RoleRequests, c.Role())
}

func TestSubscribe_ReplayedOnceOnConnect(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883"}, RoleStatus)

	require.NoError(t, c.Subscribe("hub/player/+/status", 1, noopHandler))
	assert.Equal(t, 0, fake.subscribeCount("hub/player/+/status"), "not connected yet")

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, fake.subscribeCount("hub/player/+/status"))
}

func TestSubscribe_ReconnectDoesNotDuplicate(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883"}, RoleViews)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Subscribe("hub/player/+/view", 1, noopHandler))
	require.NoError(t, c.Subscribe("hub/player/+/view", 1, noopHandler))
	assert.Equal(t, 2, fake.subscribeCount("hub/player/+/view"), "re-subscribing replaces the handler")

	fake.dropConnection()
	fake.reconnect()

	assert.Equal(t, 3, fake.subscribeCount("hub/player/+/view"), "one replay per reconnect")
	c.mu.Lock()
	assert.Len(t, c.subs, 1)
	c.mu.Unlock()
}

func TestUnsubscribe_NotReplayed(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883"}, RoleRequests)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Subscribe("a/#", 1, noopHandler))
	require.NoError(t, c.Unsubscribe("a/#"))

	fake.reconnect()
	assert.Equal(t, 1, fake.subscribeCount("a/#"))
	assert.Equal(t, []string{"a/#"}, fake.unsubscribes)
}

func TestPublish_Success(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883"}, RolePublisher)
	require.NoError(t, c.Connect(context.Background()))

	ok := c.Publish(context.Background(), "hub/player/p1/command", []byte(`{}`), 1, false)
	assert.True(t, ok)

	msgs := fake.publishedMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hub/player/p1/command", msgs[0].topic)
	assert.Equal(t, byte(1), msgs[0].qos)
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883", PublishRetries: 3}, RolePublisher)
	require.NoError(t, c.Connect(context.Background()))
	fake.publishErrs = []error{errBrokerDown, errBrokerDown}

	ok := c.Publish(context.Background(), "t", []byte("x"), 1, false)
	assert.True(t, ok)
	assert.Equal(t, 3, fake.publishCalls)
}

func TestPublish_ExhaustedReturnsFalse(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883", PublishRetries: 2}, RolePublisher)
	require.NoError(t, c.Connect(context.Background()))
	fake.publishErrs = []error{errBrokerDown, errBrokerDown, errBrokerDown}

	ok := c.Publish(context.Background(), "t", []byte("x"), 1, false)
	assert.False(t, ok)
	assert.Equal(t, 2, fake.publishCalls)
}

func TestPublish_NotConnected(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883", PublishRetries: 1}, RolePublisher)

	ok := c.Publish(context.Background(), "t", []byte("x"), 1, false)
	assert.False(t, ok)
	assert.Equal(t, 0, fake.publishCalls)
}

func TestPublish_CancelledContext(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883", PublishRetries: 5}, RolePublisher)
	require.NoError(t, c.Connect(context.Background()))
	fake.publishErrs = []error{errBrokerDown, errBrokerDown, errBrokerDown, errBrokerDown, errBrokerDown}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	ok := c.Publish(ctx, "t", []byte("x"), 1, false)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnect_GivesUpWhenContextDone(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883"}, RoleAdmin)
	fake.connectErr = errBrokerDown

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx)
	assert.Error(t, err)
	assert.False(t, c.IsConnected())
}

func TestClose(t *testing.T) {
	c, fake := newTestClient(Config{URL: "tcp://broker:1883"}, RolePublisher)
	require.NoError(t, c.Connect(context.Background()))

	c.Close()
	assert.False(t, c.IsConnected())
	assert.Equal(t, uint(disconnectQuiesceMs), fake.disconnectedQ)
}
