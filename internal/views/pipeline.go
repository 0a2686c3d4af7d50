// Package views ingests fire-and-forget view telemetry from players.
package views

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/content"
	"github.com/pixelframe/playerhub/internal/dedup"
	"github.com/pixelframe/playerhub/internal/metrics"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/ratelimit"
)

// unsyncedClock is what players report before their clock is set.
var unsyncedClock = time.Unix(0, 0).UTC()

type PlayerAuthenticator interface {
	Authenticate(ctx context.Context, playerID string) (*players.Player, error)
}

type ContentReader interface {
	GetAccount(ctx context.Context, accountID string) (*content.Account, error)
	GetPost(ctx context.Context, viewer content.Viewer, postID int64) (*content.Post, error)
}

type Pipeline struct {
	topics  broker.Topics
	players PlayerAuthenticator
	content ContentReader
	dedup   *dedup.Deduplicator
	limiter *ratelimit.Limiter
	queue   Queue
	pub     broker.Publisher
	now     func() time.Time
}

func NewPipeline(
	topics broker.Topics,
	auth PlayerAuthenticator,
	reader ContentReader,
	dd *dedup.Deduplicator,
	limiter *ratelimit.Limiter,
	queue Queue,
	pub broker.Publisher,
) *Pipeline {
	return &Pipeline{
		topics:  topics,
		players: auth,
		content: reader,
		dedup:   dd,
		limiter: limiter,
		queue:   queue,
		pub:     pub,
		now:     time.Now,
	}
}

// HandleMessage is the subscriber handler for the view filter.
func (p *Pipeline) HandleMessage(ctx context.Context, msg broker.Message) {
	route, ok := p.topics.Parse(msg.Topic)
	if !ok || route.Channel != broker.ChannelView {
		slog.Debug("Ignoring message on unexpected topic", "topic", msg.Topic)
		return
	}

	payload, err := p.Process(ctx, route.PlayerID, msg.Payload)
	outcome := "accepted"
	var rej *Rejection
	if errors.As(err, &rej) {
		outcome = rej.Code
		slog.Debug("View rejected", "player_id", route.PlayerID, "code", rej.Code, "reason", rej.Message)
	}
	metrics.MessagesReceived.WithLabelValues("view", outcome).Inc()

	if payload == nil || !payload.RequestAck {
		return
	}
	p.ack(ctx, route.PlayerID, payload.PostID, rej)
}

func (p *Pipeline) ack(ctx context.Context, playerID string, postID int64, rej *Rejection) {
	ack := Ack{Success: rej == nil, PostID: postID}
	if rej != nil {
		ack.ErrorCode = rej.Code
		ack.Error = rej.Message
	}
	data, err := json.Marshal(ack)
	if err != nil {
		slog.Error("Failed to encode view ack", "error", err)
		return
	}
	if !p.pub.Publish(ctx, p.topics.ViewAck(playerID), data, broker.QoSAtLeastOnce, false) {
		slog.Warn("Failed to publish view ack", "player_id", playerID, "post_id", postID)
	}
}

// Process runs the whole pipeline for one raw view message. The decoded
// payload is returned whenever it parsed, so the caller can honour
// request_ack even for rejected views.
func (p *Pipeline) Process(ctx context.Context, playerID string, raw []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, reject(CodeInvalidPayload, "payload is not valid JSON")
	}
	if rej := validate(&payload); rej != nil {
		return &payload, rej
	}

	if payload.PlayerKey != "" && payload.PlayerKey != playerID {
		return &payload, reject(CodeIdentity, "player_key does not match topic")
	}

	player, err := p.players.Authenticate(ctx, playerID)
	if err != nil {
		if errors.Is(err, players.ErrAuthenticationFailed) {
			return &payload, reject(CodeAuthentication, "authentication failed")
		}
		slog.Error("Failed to authenticate view", "player_id", playerID, "error", err)
		return &payload, reject(CodeInternal, "internal error")
	}

	owner, err := p.content.GetAccount(ctx, player.OwnerID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return &payload, reject(CodeOwnerMissing, "player owner not found")
		}
		slog.Error("Failed to load player owner", "player_id", playerID, "error", err)
		return &payload, reject(CodeInternal, "internal error")
	}

	return &payload, p.Accept(ctx, player, content.Viewer{AccountID: owner.ID, IsModerator: owner.IsModerator}, payload)
}

// Accept runs the steps after authentication: dedup, rate limit, content
// check, self-view exclusion, timestamp normalisation and queue handoff.
// The request channel calls it directly for submit_view. A retryable
// rejection releases the dedup marker so the resent event is not a
// duplicate.
func (p *Pipeline) Accept(ctx context.Context, player *players.Player, viewer content.Viewer, payload Payload) (err error) {
	if rej := validate(&payload); rej != nil {
		return rej
	}

	key := dedup.ViewKey(player.ID, payload.PostID, payload.Timestamp)
	first, err := p.dedup.FirstSeen(ctx, key)
	if err != nil {
		slog.Error("Dedup check failed", "player_id", player.ID, "error", err)
		return reject(CodeInternal, "internal error")
	}
	if !first {
		metrics.DuplicatesDropped.Inc()
		return reject(CodeDuplicate, "view already recorded")
	}
	defer func() {
		var rej *Rejection
		if errors.As(err, &rej) && rej.Retryable() {
			if relErr := p.dedup.Release(ctx, key); relErr != nil {
				slog.Warn("Failed to release dedup marker", "player_id", player.ID, "error", relErr)
			}
		}
	}()

	d, err := p.limiter.Allow(ctx, ratelimit.ViewPerPlayer, player.ID)
	if err != nil {
		slog.Error("Rate limit check failed", "player_id", player.ID, "error", err)
		return reject(CodeInternal, "internal error")
	}
	if !d.Allowed {
		metrics.RateLimited.WithLabelValues(ratelimit.ViewPerPlayer.Name).Inc()
		return &Rejection{Code: CodeRateLimited, Message: "too many views", RetryAfter: d.RetryAfter}
	}

	post, err := p.content.GetPost(ctx, viewer, payload.PostID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return reject(CodeNotFound, "post not found")
		}
		slog.Error("Failed to load viewed post", "post_id", payload.PostID, "error", err)
		return reject(CodeInternal, "internal error")
	}

	if post.OwnerID == player.OwnerID {
		return reject(CodeSelfView, "views of own posts are not counted")
	}

	ev := Event{
		ID:              key,
		PlayerID:        player.ID,
		ViewerAccountID: player.OwnerID,
		PostID:          post.ID,
		PostOwnerID:     post.OwnerID,
		Intent:          payload.ViewIntent,
		ViewedAt:        normalizeTimestamp(payload.Timestamp),
		LocalDatetime:   payload.LocalDatetime,
		LocalTimezone:   payload.LocalTimezone,
		ReceivedAt:      p.now().UTC(),
	}
	if err := p.queue.Enqueue(ctx, ev); err != nil {
		slog.Error("Failed to hand off view event", "player_id", player.ID, "post_id", post.ID, "error", err)
		return reject(CodeInternal, "internal error")
	}

	slog.Debug("View accepted", "player_id", player.ID, "post_id", post.ID)
	return nil
}

func validate(p *Payload) *Rejection {
	if p.PostID <= 0 {
		return reject(CodeInvalidPayload, "post_id must be a positive integer")
	}
	if p.Timestamp == "" {
		return reject(CodeInvalidPayload, "timestamp is required")
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		return reject(CodeInvalidPayload, "timestamp must be RFC3339")
	}
	switch p.ViewIntent {
	case "":
		p.ViewIntent = IntentAutomated
	case IntentAutomated, IntentIntentional:
	default:
		return reject(CodeInvalidPayload, "unknown view_intent")
	}
	return nil
}

// normalizeTimestamp maps the unsynchronised-clock sentinel to nil.
func normalizeTimestamp(ts string) *time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil || t.Equal(unsyncedClock) {
		return nil
	}
	t = t.UTC()
	return &t
}
