package views

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/content"
	"github.com/pixelframe/playerhub/internal/counter"
	"github.com/pixelframe/playerhub/internal/dedup"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/ratelimit"
)

const (
	playerID = "0b7d8a4e-2d1f-4c53-9a53-1f6f2b8f0c11"
	ownerID  = "6a1e2f0c-6a75-4d8f-8d7a-7c6f0d1e2a33"
	artistID = "d3c2b1a0-0f9e-4d8c-b7a6-5f4e3d2c1b00"
)

type fakePlayers struct {
	players map[string]*players.Player
}

func (f *fakePlayers) Authenticate(_ context.Context, id string) (*players.Player, error) {
	p, ok := f.players[id]
	if !ok || !p.Registered() {
		return nil, players.ErrAuthenticationFailed
	}
	return p, nil
}

type fakeContent struct {
	accounts map[string]*content.Account
	posts    map[int64]*content.Post
}

func (f *fakeContent) GetAccount(_ context.Context, id string) (*content.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, content.ErrNotFound
	}
	return a, nil
}

func (f *fakeContent) GetPost(_ context.Context, _ content.Viewer, id int64) (*content.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, content.ErrNotFound
	}
	return p, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, payload []byte, _ byte, _ bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	return true
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

type harness struct {
	pipeline *Pipeline
	queue    *MemoryQueue
	pub      *recordingPublisher
	clock    *testClock
	content  *fakeContent
}

func newHarness() *harness {
	clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := counter.NewMemoryStore().WithClock(clock.Now)
	h := &harness{
		queue: NewMemoryQueue(0),
		pub:   &recordingPublisher{},
		clock: clock,
		content: &fakeContent{
			accounts: map[string]*content.Account{ownerID: {ID: ownerID}},
			posts: map[int64]*content.Post{
				7: {ID: 7, OwnerID: artistID},
				8: {ID: 8, OwnerID: ownerID},
			},
		},
	}
	auth := &fakePlayers{players: map[string]*players.Player{
		playerID: {ID: playerID, OwnerID: ownerID, RegistrationStatus: players.StatusRegistered},
	}}
	h.pipeline = NewPipeline(
		broker.NewTopics("playerhub"),
		auth,
		h.content,
		dedup.New(store, dedup.DefaultTTL),
		ratelimit.New(store).WithClock(clock.Now),
		h.queue,
		h.pub,
	)
	h.pipeline.now = clock.Now
	return h
}

func viewJSON(t *testing.T, p Payload) []byte {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return data
}

func rejectionCode(t *testing.T, err error) string {
	t.Helper()
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "expected rejection, got %v", err)
	return rej.Code
}

func TestProcess_Accepts(t *testing.T) {
	h := newHarness()

	_, err := h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{
		PostID:        7,
		Timestamp:     "2026-03-01T09:59:58+01:00",
		LocalTimezone: "Europe/Paris",
	}))
	require.NoError(t, err)

	events := h.queue.Drain()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, playerID, ev.PlayerID)
	assert.Equal(t, ownerID, ev.ViewerAccountID)
	assert.Equal(t, artistID, ev.PostOwnerID)
	assert.Equal(t, IntentAutomated, ev.Intent)
	require.NotNil(t, ev.ViewedAt)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 59, 58, 0, time.UTC), *ev.ViewedAt)
	assert.Equal(t, dedup.ViewKey(playerID, 7, "2026-03-01T09:59:58+01:00"), ev.ID)
}

func TestProcess_DuplicateYieldsOneEvent(t *testing.T) {
	h := newHarness()
	raw := viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z"})

	_, err := h.pipeline.Process(context.Background(), playerID, raw)
	require.NoError(t, err)

	h.clock.t = h.clock.t.Add(10 * time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, raw)
	assert.Equal(t, CodeDuplicate, rejectionCode(t, err))

	assert.Len(t, h.queue.Drain(), 1)
}

func TestProcess_RateLimitsPerPlayer(t *testing.T) {
	h := newHarness()

	_, err := h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z"}))
	require.NoError(t, err)

	h.clock.t = h.clock.t.Add(time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:01Z"}))
	assert.Equal(t, CodeRateLimited, rejectionCode(t, err))
	var rej *Rejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 4*time.Second, rej.RetryAfter)

	h.clock.t = h.clock.t.Add(4 * time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:05Z"}))
	require.NoError(t, err)

	assert.Len(t, h.queue.Drain(), 2)
}

func TestProcess_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		playerID string
		raw      string
		code     string
	}{
		{"not json", playerID, `{`, CodeInvalidPayload},
		{"missing post", playerID, `{"timestamp":"2026-03-01T10:00:00Z"}`, CodeInvalidPayload},
		{"bad timestamp", playerID, `{"post_id":7,"timestamp":"yesterday"}`, CodeInvalidPayload},
		{"bad intent", playerID, `{"post_id":7,"timestamp":"2026-03-01T10:00:00Z","view_intent":"bored"}`, CodeInvalidPayload},
		{"identity", playerID, `{"post_id":7,"timestamp":"2026-03-01T10:00:00Z","player_key":"someone-else"}`, CodeIdentity},
		{"unknown player", "f1f1f1f1-0000-0000-0000-000000000000", `{"post_id":7,"timestamp":"2026-03-01T10:00:00Z"}`, CodeAuthentication},
		{"unknown post", playerID, `{"post_id":99,"timestamp":"2026-03-01T10:00:00Z"}`, CodeNotFound},
		{"self view", playerID, `{"post_id":8,"timestamp":"2026-03-01T10:00:00Z"}`, CodeSelfView},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.pipeline.Process(context.Background(), tt.playerID, []byte(tt.raw))
			assert.Equal(t, tt.code, rejectionCode(t, err))
			assert.Empty(t, h.queue.Drain())
		})
	}
}

func TestProcess_OwnerMissing(t *testing.T) {
	h := newHarness()
	delete(h.content.accounts, ownerID)

	_, err := h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z"}))
	assert.Equal(t, CodeOwnerMissing, rejectionCode(t, err))
}

func TestProcess_UnsyncedClockStoredAsAbsent(t *testing.T) {
	h := newHarness()

	_, err := h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{PostID: 7, Timestamp: "1970-01-01T00:00:00Z"}))
	require.NoError(t, err)

	events := h.queue.Drain()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].ViewedAt)
}

func TestProcess_QueueFailure(t *testing.T) {
	h := newHarness()
	h.pipeline.queue = NewMemoryQueue(1)
	require.NoError(t, h.pipeline.queue.Enqueue(context.Background(), Event{ID: "filler"}))

	_, err := h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z"}))
	assert.Equal(t, CodeInternal, rejectionCode(t, err))
}

func TestProcess_QueueFailureAllowsRetransmit(t *testing.T) {
	h := newHarness()
	h.pipeline.queue = NewMemoryQueue(1)
	require.NoError(t, h.pipeline.queue.Enqueue(context.Background(), Event{ID: "filler"}))
	raw := viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z"})

	_, err := h.pipeline.Process(context.Background(), playerID, raw)
	assert.Equal(t, CodeInternal, rejectionCode(t, err))

	h.pipeline.queue = h.queue
	h.clock.t = h.clock.t.Add(6 * time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, raw)
	require.NoError(t, err)

	events := h.queue.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, dedup.ViewKey(playerID, 7, "2026-03-01T10:00:00Z"), events[0].ID)
}

func TestProcess_RateLimitedViewCountsOnRetry(t *testing.T) {
	h := newHarness()

	_, err := h.pipeline.Process(context.Background(), playerID, viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z"}))
	require.NoError(t, err)

	limited := viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:01Z"})
	h.clock.t = h.clock.t.Add(time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, limited)
	assert.Equal(t, CodeRateLimited, rejectionCode(t, err))

	h.clock.t = h.clock.t.Add(4 * time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, limited)
	require.NoError(t, err)

	h.clock.t = h.clock.t.Add(5 * time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, limited)
	assert.Equal(t, CodeDuplicate, rejectionCode(t, err), "an accepted view keeps its marker")

	assert.Len(t, h.queue.Drain(), 2)
}

func TestProcess_FinalRejectionKeepsMarker(t *testing.T) {
	h := newHarness()
	raw := viewJSON(t, Payload{PostID: 8, Timestamp: "2026-03-01T10:00:00Z"})

	_, err := h.pipeline.Process(context.Background(), playerID, raw)
	assert.Equal(t, CodeSelfView, rejectionCode(t, err))

	h.clock.t = h.clock.t.Add(6 * time.Second)
	_, err = h.pipeline.Process(context.Background(), playerID, raw)
	assert.Equal(t, CodeDuplicate, rejectionCode(t, err))
}

func TestHandleMessage_AckOnlyWhenRequested(t *testing.T) {
	h := newHarness()
	topic := "playerhub/player/" + playerID + "/view"

	h.pipeline.HandleMessage(context.Background(), broker.Message{
		Topic:   topic,
		Payload: viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z"}),
	})
	assert.Empty(t, h.pub.topics)

	h.clock.t = h.clock.t.Add(5 * time.Second)
	h.pipeline.HandleMessage(context.Background(), broker.Message{
		Topic:   topic,
		Payload: viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:05Z", RequestAck: true}),
	})
	h.pipeline.HandleMessage(context.Background(), broker.Message{
		Topic:   topic,
		Payload: viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:05Z", RequestAck: true}),
	})

	require.Len(t, h.pub.payloads, 2)
	assert.Equal(t, topic+"/ack", h.pub.topics[0])

	var ack Ack
	require.NoError(t, json.Unmarshal(h.pub.payloads[0], &ack))
	assert.True(t, ack.Success)
	assert.Equal(t, int64(7), ack.PostID)

	require.NoError(t, json.Unmarshal(h.pub.payloads[1], &ack))
	assert.False(t, ack.Success)
	assert.Equal(t, CodeDuplicate, ack.ErrorCode)
}

func TestHandleMessage_IgnoresForeignTopics(t *testing.T) {
	h := newHarness()

	h.pipeline.HandleMessage(context.Background(), broker.Message{
		Topic:   "other/player/" + playerID + "/view",
		Payload: viewJSON(t, Payload{PostID: 7, Timestamp: "2026-03-01T10:00:00Z", RequestAck: true}),
	})
	assert.Empty(t, h.pub.topics)
	assert.Empty(t, h.queue.Drain())
}
