// Package commands sends server-initiated commands to players.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/commandlog"
	"github.com/pixelframe/playerhub/internal/content"
	"github.com/pixelframe/playerhub/internal/metrics"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/ratelimit"
)

type PlayerDirectory interface {
	GetOwned(ctx context.Context, playerID, ownerID string) (*players.Player, error)
	ListRegisteredOwned(ctx context.Context, ownerID string) ([]players.Player, error)
	SetCurrentPost(ctx context.Context, playerID string, postID int64) error
}

// ContentChecker answers whether the owner may see a post.
type ContentChecker interface {
	GetAccount(ctx context.Context, accountID string) (*content.Account, error)
	GetPost(ctx context.Context, viewer content.Viewer, postID int64) (*content.Post, error)
}

type Dispatcher struct {
	topics  broker.Topics
	players PlayerDirectory
	content ContentChecker
	limiter *ratelimit.Limiter
	log     commandlog.Writer
	pub     broker.Publisher
	now     func() time.Time
}

func NewDispatcher(
	topics broker.Topics,
	directory PlayerDirectory,
	checker ContentChecker,
	limiter *ratelimit.Limiter,
	log commandlog.Writer,
	pub broker.Publisher,
) *Dispatcher {
	return &Dispatcher{
		topics:  topics,
		players: directory,
		content: checker,
		limiter: limiter,
		log:     log,
		pub:     pub,
		now:     time.Now,
	}
}

// Dispatch sends one command to one of ownerID's registered players. Both
// the per-player and the per-account limit apply; a rejection is a
// *ratelimit.Error naming the rule. A publish failure is not an error: the
// command is logged either way and Result.Published reports delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID, playerID, commandType string, payload json.RawMessage) (*Result, error) {
	cmd, err := parse(commandType, payload)
	if err != nil {
		return nil, err
	}

	player, err := d.players.GetOwned(ctx, playerID, ownerID)
	if err != nil {
		return nil, err
	}
	if !player.Registered() {
		return nil, players.ErrNotFound
	}

	if err := d.checkContent(ctx, ownerID, cmd); err != nil {
		return nil, err
	}

	if err := d.check(ctx, ratelimit.CommandPerPlayer, player.ID); err != nil {
		return nil, err
	}
	if err := d.check(ctx, ratelimit.CommandPerAccount, ownerID); err != nil {
		return nil, err
	}

	return d.send(ctx, player.ID, cmd), nil
}

// DispatchAll sends one command to every registered player of ownerID. The
// account limit is charged once; players over their own limit are skipped
// and the skip is logged.
func (d *Dispatcher) DispatchAll(ctx context.Context, ownerID, commandType string, payload json.RawMessage) (*BatchResult, error) {
	cmd, err := parse(commandType, payload)
	if err != nil {
		return nil, err
	}

	list, err := d.players.ListRegisteredOwned(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNoPlayers
	}

	if err := d.checkContent(ctx, ownerID, cmd); err != nil {
		return nil, err
	}
	if err := d.check(ctx, ratelimit.CommandPerAccount, ownerID); err != nil {
		return nil, err
	}

	result := &BatchResult{Dispatched: []Result{}, Skipped: []Skipped{}}
	for _, p := range list {
		if err := d.check(ctx, ratelimit.CommandPerPlayer, p.ID); err != nil {
			reason := "rate_limited"
			var rl *ratelimit.Error
			if !errors.As(err, &rl) {
				reason = "internal_error"
				slog.Error("Player rate limit check failed", "player_id", p.ID, "error", err)
			}
			result.Skipped = append(result.Skipped, Skipped{PlayerID: p.ID, Reason: reason})
			metrics.CommandsDispatched.WithLabelValues(cmd.commandType, "skipped").Inc()
			d.write(ctx, p.ID, commandlog.TypeSkipped, map[string]any{
				"command_type": cmd.commandType,
				"reason":       reason,
			})
			continue
		}
		result.Dispatched = append(result.Dispatched, *d.send(ctx, p.ID, cmd))
	}

	slog.Info("Broadcast command dispatched",
		"owner_id", ownerID,
		"command_type", cmd.commandType,
		"dispatched", len(result.Dispatched),
		"skipped", len(result.Skipped))
	return result, nil
}

func (d *Dispatcher) check(ctx context.Context, rule ratelimit.Rule, subject string) error {
	err := d.limiter.Check(ctx, rule, subject)
	var rl *ratelimit.Error
	if errors.As(err, &rl) {
		metrics.RateLimited.WithLabelValues(rule.Name).Inc()
	}
	return err
}

// checkContent rejects show_artwork for posts the owner cannot see.
func (d *Dispatcher) checkContent(ctx context.Context, ownerID string, cmd *validated) error {
	if cmd.commandType != TypeShowArtwork {
		return nil
	}

	owner, err := d.content.GetAccount(ctx, ownerID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return ErrOwnerNotFound
		}
		return err
	}

	viewer := content.Viewer{AccountID: owner.ID, IsModerator: owner.IsModerator}
	if _, err := d.content.GetPost(ctx, viewer, cmd.postID); err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return ErrPostNotFound
		}
		return err
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, playerID string, cmd *validated) *Result {
	msg := Command{
		ID:        uuid.NewString(),
		Type:      cmd.commandType,
		Payload:   cmd.payload,
		Timestamp: d.now().UTC(),
	}

	published := false
	if data, err := json.Marshal(msg); err != nil {
		slog.Error("Failed to encode command", "command_id", msg.ID, "error", err)
	} else {
		published = d.pub.Publish(ctx, d.topics.Command(playerID), data, broker.QoSAtLeastOnce, false)
	}

	outcome := "published"
	if !published {
		outcome = "publish_failed"
		slog.Warn("Command not acknowledged by broker", "player_id", playerID, "command_id", msg.ID, "command_type", msg.Type)
	}
	metrics.CommandsDispatched.WithLabelValues(cmd.commandType, outcome).Inc()

	d.write(ctx, playerID, cmd.commandType, map[string]any{
		"command_id": msg.ID,
		"payload":    cmd.payload,
		"published":  published,
	})

	if published && cmd.commandType == TypeShowArtwork {
		if err := d.players.SetCurrentPost(ctx, playerID, cmd.postID); err != nil {
			slog.Warn("Failed to record current post", "player_id", playerID, "post_id", cmd.postID, "error", err)
		}
	}

	return &Result{CommandID: msg.ID, PlayerID: playerID, Published: published}
}

func (d *Dispatcher) write(ctx context.Context, playerID, commandType string, payload map[string]any) {
	if err := d.log.Write(ctx, playerID, commandType, payload); err != nil {
		slog.Error("Failed to write command log", "player_id", playerID, "command_type", commandType, "error", err)
	}
}
