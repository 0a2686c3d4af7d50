package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/pixelframe/playerhub/internal/content"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/views"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxRandomSeed   = 1 << 31
)

// ViewAcceptor is the post-authentication half of the view pipeline.
type ViewAcceptor interface {
	Accept(ctx context.Context, player *players.Player, viewer content.Viewer, payload views.Payload) error
}

type queryPostsParams struct {
	Channel    content.Channel `json:"channel"`
	Sort       content.Sort    `json:"sort"`
	RandomSeed *int64          `json:"random_seed"`
	Cursor     string          `json:"cursor"`
	Limit      *int            `json:"limit"`
}

type postParams struct {
	PostID int64 `json:"post_id"`
}

type reactionParams struct {
	PostID int64  `json:"post_id"`
	Emoji  string `json:"emoji"`
}

type commentsParams struct {
	PostID int64  `json:"post_id"`
	Cursor string `json:"cursor"`
	Limit  *int   `json:"limit"`
}

func pageSize(limit *int) (int, error) {
	if limit == nil {
		return defaultPageSize, nil
	}
	if *limit < 1 || *limit > maxPageSize {
		return 0, invalid("limit must be between 1 and %d", maxPageSize)
	}
	return *limit, nil
}

func nextCursor(offset, returned int, hasMore bool) *string {
	if !hasMore {
		return nil
	}
	c := content.EncodeCursor(offset + returned)
	return &c
}

func (r *Router) queryPosts(ctx context.Context, c caller, raw json.RawMessage) (Fields, error) {
	var p queryPostsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Channel == "" {
		p.Channel = content.ChannelAll
	}
	if p.Sort == "" {
		p.Sort = content.SortCreatedAt
	}
	if !p.Channel.Valid() {
		return nil, invalid("unknown channel %q", p.Channel)
	}
	if !p.Sort.Valid() {
		return nil, invalid("unknown sort %q", p.Sort)
	}
	limit, err := pageSize(p.Limit)
	if err != nil {
		return nil, err
	}
	offset, err := content.DecodeCursor(p.Cursor)
	if err != nil {
		return nil, invalid("invalid cursor")
	}

	q := content.FeedQuery{Channel: p.Channel, Sort: p.Sort, Offset: offset, Limit: limit}
	if p.Sort == content.SortRandom {
		if p.RandomSeed != nil {
			q.Seed = *p.RandomSeed
		} else {
			q.Seed = rand.Int64N(maxRandomSeed)
		}
	}

	page, err := r.content.QueryPosts(ctx, c.viewer, q)
	if err != nil {
		if errors.Is(err, content.ErrInvalidQuery) {
			return nil, invalid("invalid query")
		}
		return nil, err
	}

	fields := Fields{
		"posts":       nonNil(page.Posts),
		"has_more":    page.HasMore,
		"next_cursor": nextCursor(offset, len(page.Posts), page.HasMore),
	}
	if p.Sort == content.SortRandom {
		fields["random_seed"] = q.Seed
	}
	return fields, nil
}

func (r *Router) getPost(ctx context.Context, c caller, raw json.RawMessage) (Fields, error) {
	var p postParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	post, err := r.visiblePost(ctx, c, p.PostID)
	if err != nil {
		return nil, err
	}
	return Fields{"post": post}, nil
}

// visiblePost answers not_found for missing and hidden posts alike.
func (r *Router) visiblePost(ctx context.Context, c caller, postID int64) (*content.Post, error) {
	if postID <= 0 {
		return nil, invalid("post_id must be a positive integer")
	}
	post, err := r.content.GetPost(ctx, c.viewer, postID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, newError(CodeNotFound, "post not found")
		}
		return nil, err
	}
	return post, nil
}

func (r *Router) submitView(ctx context.Context, c caller, raw json.RawMessage) (Fields, error) {
	var p views.Payload
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}

	err := r.views.Accept(ctx, c.player, c.viewer, p)
	if err == nil {
		return Fields{"post_id": p.PostID, "recorded": true}, nil
	}

	var rej *views.Rejection
	if !errors.As(err, &rej) {
		return nil, err
	}
	switch rej.Code {
	case views.CodeSelfView:
		return Fields{"post_id": p.PostID, "recorded": false}, nil
	case views.CodeInvalidPayload:
		return nil, invalid("%s", rej.Message)
	case views.CodeDuplicate:
		return nil, newError(CodeDuplicate, rej.Message)
	case views.CodeRateLimited:
		return nil, &Error{Code: CodeRateLimited, Message: rej.Message, RetryAfter: rej.RetryAfter}
	case views.CodeNotFound:
		return nil, newError(CodeNotFound, "post not found")
	default:
		return nil, newError(CodeInternal, "internal error")
	}
}

func (r *Router) submitReaction(ctx context.Context, c caller, raw json.RawMessage) (Fields, error) {
	var p reactionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if _, err := r.visiblePost(ctx, c, p.PostID); err != nil {
		return nil, err
	}

	err := r.content.AddReaction(ctx, c.player.OwnerID, p.PostID, p.Emoji)
	switch {
	case errors.Is(err, content.ErrInvalidEmoji):
		return nil, invalid("invalid emoji")
	case errors.Is(err, content.ErrReactionLimit):
		return nil, newError(CodeReactionLimit, "at most 5 reactions per post")
	case err != nil:
		return nil, err
	}

	slog.Debug("Reaction submitted", "player_id", c.player.ID, "post_id", p.PostID)
	return Fields{"post_id": p.PostID, "emoji": p.Emoji}, nil
}

func (r *Router) revokeReaction(ctx context.Context, c caller, raw json.RawMessage) (Fields, error) {
	var p reactionParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.PostID <= 0 {
		return nil, invalid("post_id must be a positive integer")
	}

	err := r.content.RemoveReaction(ctx, c.player.OwnerID, p.PostID, p.Emoji)
	if errors.Is(err, content.ErrInvalidEmoji) {
		return nil, invalid("invalid emoji")
	}
	if err != nil {
		return nil, err
	}
	return Fields{"post_id": p.PostID, "emoji": p.Emoji}, nil
}

func (r *Router) getComments(ctx context.Context, c caller, raw json.RawMessage) (Fields, error) {
	var p commentsParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	limit, err := pageSize(p.Limit)
	if err != nil {
		return nil, err
	}
	offset, err := content.DecodeCursor(p.Cursor)
	if err != nil {
		return nil, invalid("invalid cursor")
	}
	if _, err := r.visiblePost(ctx, c, p.PostID); err != nil {
		return nil, err
	}

	page, err := r.content.ListComments(ctx, c.viewer, p.PostID, offset, limit)
	if err != nil {
		return nil, err
	}
	return Fields{
		"post_id":     p.PostID,
		"comments":    nonNil(page.Comments),
		"has_more":    page.HasMore,
		"next_cursor": nextCursor(offset, len(page.Comments), page.HasMore),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
