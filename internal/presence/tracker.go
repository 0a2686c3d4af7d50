// Package presence ingests player status heartbeats.
package presence

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/metrics"
	"github.com/pixelframe/playerhub/internal/players"
)

type PresenceStore interface {
	UpdatePresence(ctx context.Context, playerID string, p players.Presence) (bool, error)
}

// Status is the heartbeat payload.
type Status struct {
	Status          players.ConnectionStatus `json:"status"`
	CurrentPostID   *int64                   `json:"current_post_id,omitempty"`
	FirmwareVersion *string                  `json:"firmware_version,omitempty"`
}

// Tracker trusts the topic for identity; status is low-trust telemetry.
type Tracker struct {
	topics broker.Topics
	store  PresenceStore
	now    func() time.Time
}

func NewTracker(topics broker.Topics, store PresenceStore) *Tracker {
	return &Tracker{topics: topics, store: store, now: time.Now}
}

func (t *Tracker) HandleMessage(ctx context.Context, msg broker.Message) {
	route, ok := t.topics.Parse(msg.Topic)
	if !ok || route.Channel != broker.ChannelStatus {
		slog.Debug("Ignoring message on unexpected topic", "topic", msg.Topic)
		return
	}
	outcome := t.Apply(ctx, route.PlayerID, msg.Payload)
	metrics.MessagesReceived.WithLabelValues("status", outcome).Inc()
}

// Apply records one heartbeat and returns its outcome label. Heartbeats
// from unknown players are dropped: credentials can outlive the row while
// the broker catches up.
func (t *Tracker) Apply(ctx context.Context, playerID string, raw []byte) string {
	if _, err := uuid.Parse(playerID); err != nil {
		slog.Debug("Dropping heartbeat with malformed player id", "player_id", playerID)
		return "unknown_player"
	}

	var s Status
	if err := json.Unmarshal(raw, &s); err != nil {
		slog.Warn("Dropping malformed heartbeat", "player_id", playerID, "error", err)
		return "invalid_payload"
	}
	if !s.Status.Valid() {
		slog.Warn("Dropping heartbeat with unknown status", "player_id", playerID, "status", s.Status)
		return "invalid_payload"
	}
	if s.CurrentPostID != nil && *s.CurrentPostID <= 0 {
		s.CurrentPostID = nil
	}

	found, err := t.store.UpdatePresence(ctx, playerID, players.Presence{
		Status:          s.Status,
		SeenAt:          t.now().UTC(),
		CurrentPostID:   s.CurrentPostID,
		FirmwareVersion: s.FirmwareVersion,
	})
	if err != nil {
		slog.Error("Failed to update presence", "player_id", playerID, "error", err)
		return "error"
	}
	if !found {
		slog.Info("Heartbeat from unknown player", "player_id", playerID)
		return "unknown_player"
	}

	slog.Debug("Presence updated", "player_id", playerID, "status", s.Status)
	return "ok"
}
