package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelframe/playerhub/internal/db"
	"github.com/pixelframe/playerhub/internal/db/sqlc"
)

const (
	MaxReactionsPerPost = 5
	MaxCommentDepth     = 2
	maxEmojiLength      = 16
)

var (
	// ErrNotFound covers both missing and invisible content.
	ErrNotFound      = errors.New("content not found")
	ErrReactionLimit = errors.New("reaction limit reached for this post")
	ErrInvalidEmoji  = errors.New("invalid emoji")
	ErrInvalidQuery  = errors.New("invalid feed query")
)

type Service struct {
	pool    *pgxpool.Pool
	queries *sqlc.Queries
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{
		pool:    pool,
		queries: sqlc.New(pool),
	}
}

func (s *Service) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	id := pgUUID(accountID)
	if !id.Valid {
		return nil, ErrNotFound
	}

	row, err := s.queries.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &Account{
		ID:          uuidToString(row.ID),
		Handle:      row.Handle,
		IsModerator: row.IsModerator,
	}, nil
}

// GetPost returns the post if viewer may see it, otherwise ErrNotFound.
func (s *Service) GetPost(ctx context.Context, viewer Viewer, postID int64) (*Post, error) {
	if postID <= 0 {
		return nil, ErrNotFound
	}

	query, args := buildPostQuery(viewer, postID)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrNotFound
	}
	return &posts[0], nil
}

func (s *Service) QueryPosts(ctx context.Context, viewer Viewer, q FeedQuery) (*PostPage, error) {
	if !q.Channel.Valid() || !q.Sort.Valid() || q.Limit <= 0 || q.Offset < 0 {
		return nil, ErrInvalidQuery
	}
	if q.Channel == ChannelUser && !pgUUID(viewer.AccountID).Valid {
		return nil, ErrInvalidQuery
	}

	query, args := buildFeedQuery(viewer, q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}

	page := &PostPage{Posts: posts}
	if len(posts) > q.Limit {
		page.Posts = posts[:q.Limit]
		page.HasMore = true
	}
	return page, nil
}

// AddReaction is idempotent for a reaction that already exists. The per
// account and post lock keeps concurrent adds from passing the cap together.
func (s *Service) AddReaction(ctx context.Context, accountID string, postID int64, emoji string) error {
	if err := validateEmoji(emoji); err != nil {
		return err
	}
	account := pgUUID(accountID)
	if !account.Valid {
		return ErrNotFound
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		if err := q.AcquireXactLock(ctx, fmt.Sprintf("reaction:%s:%d", accountID, postID)); err != nil {
			return fmt.Errorf("failed to lock reactions: %w", err)
		}

		exists, err := q.ReactionExists(ctx, sqlc.ReactionExistsParams{PostID: postID, AccountID: account, Emoji: emoji})
		if err != nil {
			return fmt.Errorf("failed to check reaction: %w", err)
		}
		if exists {
			return nil
		}

		count, err := q.CountReactionsByAccount(ctx, sqlc.CountReactionsByAccountParams{PostID: postID, AccountID: account})
		if err != nil {
			return fmt.Errorf("failed to count reactions: %w", err)
		}
		if count >= MaxReactionsPerPost {
			return ErrReactionLimit
		}

		if _, err := q.InsertReaction(ctx, sqlc.InsertReactionParams{PostID: postID, AccountID: account, Emoji: emoji}); err != nil {
			return fmt.Errorf("failed to insert reaction: %w", err)
		}
		slog.Debug("Reaction added", "post_id", postID, "account_id", accountID, "emoji", emoji)
		return nil
	})
}

// RemoveReaction succeeds whether or not the reaction existed.
func (s *Service) RemoveReaction(ctx context.Context, accountID string, postID int64, emoji string) error {
	if err := validateEmoji(emoji); err != nil {
		return err
	}
	account := pgUUID(accountID)
	if !account.Valid {
		return ErrNotFound
	}

	if _, err := s.queries.DeleteReaction(ctx, sqlc.DeleteReactionParams{PostID: postID, AccountID: account, Emoji: emoji}); err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}
	return nil
}

// ListComments returns comments up to MaxCommentDepth in creation order.
// Moderator-hidden comments are only listed for moderators.
func (s *Service) ListComments(ctx context.Context, viewer Viewer, postID int64, offset, limit int) (*CommentPage, error) {
	if offset < 0 || limit <= 0 {
		return nil, ErrInvalidQuery
	}

	rows, err := s.queries.ListComments(ctx, sqlc.ListCommentsParams{
		PostID:        postID,
		Limit:         int32(limit + 1),
		Offset:        int32(offset),
		IncludeHidden: viewer.IsModerator,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	page := &CommentPage{Comments: make([]Comment, 0, len(rows))}
	for _, r := range rows {
		c := Comment{
			ID:        uuidToString(r.ID),
			PostID:    r.PostID,
			Depth:     int(r.Depth),
			Body:      r.Body,
			CreatedAt: r.CreatedAt.Time,
		}
		if r.ParentID.Valid {
			c.ParentID = uuidToString(r.ParentID)
		}
		if r.AuthorID.Valid {
			c.AuthorID = uuidToString(r.AuthorID)
		}
		page.Comments = append(page.Comments, c)
	}
	if len(page.Comments) > limit {
		page.Comments = page.Comments[:limit]
		page.HasMore = true
	}
	return page, nil
}

func collectPosts(rows pgx.Rows) ([]Post, error) {
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		var (
			p       Post
			ownerID pgtype.UUID
			width   int32
			height  int32
			created pgtype.Timestamptz
		)
		if err := rows.Scan(&p.ID, &ownerID, &p.Title, &p.ArtURL, &width, &height, &p.Promoted, &created); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.OwnerID = uuidToString(ownerID)
		p.Width = int(width)
		p.Height = int(height)
		p.CreatedAt = created.Time
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read posts: %w", err)
	}
	return posts, nil
}

func validateEmoji(emoji string) error {
	if emoji == "" || len(emoji) > maxEmojiLength || !utf8.ValidString(emoji) {
		return ErrInvalidEmoji
	}
	return nil
}

func pgUUID(id string) pgtype.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
