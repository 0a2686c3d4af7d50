// Package router serves the player request/response protocol.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/content"
	"github.com/pixelframe/playerhub/internal/metrics"
	"github.com/pixelframe/playerhub/internal/players"
)

type PlayerAuthenticator interface {
	Authenticate(ctx context.Context, playerID string) (*players.Player, error)
}

// ContentService is what request handlers read and write.
type ContentService interface {
	GetAccount(ctx context.Context, accountID string) (*content.Account, error)
	GetPost(ctx context.Context, viewer content.Viewer, postID int64) (*content.Post, error)
	QueryPosts(ctx context.Context, viewer content.Viewer, q content.FeedQuery) (*content.PostPage, error)
	AddReaction(ctx context.Context, accountID string, postID int64, emoji string) error
	RemoveReaction(ctx context.Context, accountID string, postID int64, emoji string) error
	ListComments(ctx context.Context, viewer content.Viewer, postID int64, offset, limit int) (*content.CommentPage, error)
}

// caller is the authenticated player a request runs for.
type caller struct {
	player *players.Player
	viewer content.Viewer
}

type handlerFunc func(ctx context.Context, c caller, raw json.RawMessage) (Fields, error)

type Router struct {
	topics   broker.Topics
	players  PlayerAuthenticator
	content  ContentService
	views    ViewAcceptor
	pub      broker.Publisher
	handlers map[string]handlerFunc
}

func New(topics broker.Topics, auth PlayerAuthenticator, svc ContentService, views ViewAcceptor, pub broker.Publisher) *Router {
	r := &Router{
		topics:  topics,
		players: auth,
		content: svc,
		views:   views,
		pub:     pub,
	}
	r.handlers = map[string]handlerFunc{
		"query_posts":     r.queryPosts,
		"get_post":        r.getPost,
		"submit_view":     r.submitView,
		"submit_reaction": r.submitReaction,
		"revoke_reaction": r.revokeReaction,
		"get_comments":    r.getComments,
	}
	return r
}

// HandleMessage is the subscriber handler for the request filter. It
// publishes exactly one response per request, or logs when that publish
// fails; the player retries after its own timeout.
func (r *Router) HandleMessage(ctx context.Context, msg broker.Message) {
	route, ok := r.topics.Parse(msg.Topic)
	if !ok || route.Channel != broker.ChannelRequest {
		slog.Debug("Ignoring message on unexpected topic", "topic", msg.Topic)
		return
	}

	fields, err := r.Handle(ctx, route.PlayerID, msg.Payload)

	var payload any
	outcome := "ok"
	if err != nil {
		var herr *Error
		if !errors.As(err, &herr) {
			slog.Error("Request handler failed", "player_id", route.PlayerID, "request_id", route.RequestID, "error", err)
			herr = newError(CodeInternal, "internal error")
		}
		outcome = herr.Code
		payload = herr.response(route.RequestID)
	} else {
		payload = successResponse(route.RequestID, fields)
	}
	metrics.MessagesReceived.WithLabelValues("request", outcome).Inc()

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode response", "request_id", route.RequestID, "error", err)
		return
	}
	if !r.pub.Publish(ctx, r.topics.Response(route.PlayerID, route.RequestID), data, broker.QoSAtLeastOnce, false) {
		slog.Warn("Failed to publish response", "player_id", route.PlayerID, "request_id", route.RequestID)
	}
}

// Handle authenticates playerID and dispatches the request in raw.
func (r *Router) Handle(ctx context.Context, playerID string, raw []byte) (Fields, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, invalid("payload is not a JSON object")
	}

	c, err := r.authenticate(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if req.PlayerKey != "" && req.PlayerKey != playerID {
		return nil, newError(CodeAuthentication, "authentication failed")
	}

	if req.RequestType == "" {
		return nil, invalid("request_type is required")
	}
	handler, ok := r.handlers[req.RequestType]
	if !ok {
		return nil, newError(CodeUnknownRequestType, "unknown request_type "+req.RequestType)
	}

	slog.Debug("Handling player request", "player_id", playerID, "request_type", req.RequestType)
	return handler(ctx, c, raw)
}

// authenticate folds every failure into one error so callers cannot tell an
// unknown player from an unregistered or orphaned one.
func (r *Router) authenticate(ctx context.Context, playerID string) (caller, error) {
	denied := newError(CodeAuthentication, "authentication failed")

	player, err := r.players.Authenticate(ctx, playerID)
	if err != nil {
		if errors.Is(err, players.ErrAuthenticationFailed) {
			return caller{}, denied
		}
		return caller{}, err
	}

	owner, err := r.content.GetAccount(ctx, player.OwnerID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return caller{}, denied
		}
		return caller{}, err
	}

	return caller{
		player: player,
		viewer: content.Viewer{AccountID: owner.ID, IsModerator: owner.IsModerator},
	}, nil
}

func decodeParams(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return invalid("malformed request fields")
	}
	return nil
}
