package broker

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// fakePaho stands in for a paho client. Connect and reconnect invoke the
// OnConnect handler synchronously.
type fakePaho struct {
	opts *mqtt.ClientOptions

	mu            sync.Mutex
	connected     bool
	subscribes    []string
	handlers      map[string]mqtt.MessageHandler
	unsubscribes  []string
	publishes     []published
	publishErrs   []error
	publishCalls  int
	connectErr    error
	disconnectedQ uint
}

func newFakePaho(opts *mqtt.ClientOptions) *fakePaho {
	return &fakePaho{opts: opts, handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool { return f.IsConnectionOpen() }

func (f *fakePaho) IsConnectionOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Connect() mqtt.Token {
	f.mu.Lock()
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		return &fakeToken{err: err}
	}
	f.connected = true
	f.mu.Unlock()

	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	return &fakeToken{}
}

func (f *fakePaho) dropConnection() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakePaho) reconnect() {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
}

func (f *fakePaho) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnectedQ = quiesce
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := f.publishCalls
	f.publishCalls++
	if call < len(f.publishErrs) && f.publishErrs[call] != nil {
		return &fakeToken{err: f.publishErrs[call]}
	}

	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.publishes = append(f.publishes, published{topic: topic, payload: data, qos: qos, retain: retained})
	return &fakeToken{}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, topic)
	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
		f.unsubscribes = append(f.unsubscribes, t)
	}
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(topic string, callback mqtt.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = callback
}

func (f *fakePaho) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// deliver hands a message to the handler registered for filter.
func (f *fakePaho) deliver(filter, topic string, payload []byte) bool {
	f.mu.Lock()
	h, ok := f.handlers[filter]
	f.mu.Unlock()
	if !ok {
		return false
	}
	h(f, &fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakePaho) subscribeCount(filter string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subscribes {
		if s == filter {
			n++
		}
	}
	return n
}

func (f *fakePaho) publishedMessages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.publishes...)
}

var errBrokerDown = errors.New("broker down")

func newTestClient(cfg Config, role Role) (*Client, *fakePaho) {
	var fake *fakePaho
	c := NewClient(cfg, role, WithClientFactory(func(opts *mqtt.ClientOptions) mqtt.Client {
		fake = newFakePaho(opts)
		return fake
	}))
	return c, fake
}
