package content

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFeedQuery_PromotedNewestFirst(t *testing.T) {
	owner := uuid.New()
	query, args := buildFeedQuery(Viewer{AccountID: owner.String()}, FeedQuery{
		Channel: ChannelPromoted,
		Sort:    SortCreatedAt,
		Limit:   20,
		Offset:  40,
	})

	assert.Contains(t, query, "(p.visible AND NOT p.hidden_by_mod AND NOT p.non_conformant)")
	assert.Contains(t, query, "p.owner_id = $1")
	assert.Contains(t, query, "AND p.promoted")
	assert.Contains(t, query, "ORDER BY p.created_at DESC, p.id DESC")
	assert.True(t, strings.HasSuffix(query, "LIMIT $2 OFFSET $3"))

	require.Len(t, args, 3)
	assert.Equal(t, pgtype.UUID{Bytes: owner, Valid: true}, args[0])
	assert.Equal(t, 21, args[1], "one extra row for has_more")
	assert.Equal(t, 40, args[2])
}

func TestBuildFeedQuery_ModeratorSkipsVisibility(t *testing.T) {
	query, args := buildFeedQuery(Viewer{AccountID: uuid.NewString(), IsModerator: true}, FeedQuery{
		Channel: ChannelAll,
		Sort:    SortServerOrder,
		Limit:   10,
	})

	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "ORDER BY p.id ASC")
	assert.Len(t, args, 2)
}

func TestBuildFeedQuery_UserChannel(t *testing.T) {
	owner := uuid.New()
	query, args := buildFeedQuery(Viewer{AccountID: owner.String()}, FeedQuery{
		Channel: ChannelUser,
		Sort:    SortCreatedAt,
		Limit:   5,
	})

	assert.Contains(t, query, "p.owner_id = $2")
	assert.Equal(t, pgtype.UUID{Bytes: owner, Valid: true}, args[1])
}

func TestBuildFeedQuery_RandomUsesSeed(t *testing.T) {
	query, args := buildFeedQuery(Viewer{}, FeedQuery{
		Channel: ChannelAll,
		Sort:    SortRandom,
		Seed:    1234,
		Limit:   5,
	})

	assert.Contains(t, query, "ORDER BY md5(p.id::text || ':' || $1::text), p.id")
	assert.Equal(t, int64(1234), args[0])
	assert.Contains(t, query, "WHERE (p.visible AND NOT p.hidden_by_mod AND NOT p.non_conformant) ORDER BY")
}

func TestBuildPostQuery(t *testing.T) {
	query, args := buildPostQuery(Viewer{}, 99)
	assert.Equal(t,
		"SELECT "+postColumns+" FROM posts p WHERE p.id = $1 AND (p.visible AND NOT p.hidden_by_mod AND NOT p.non_conformant)",
		query)
	assert.Equal(t, []any{int64(99)}, args)
}

func TestCursorRoundTrip(t *testing.T) {
	offset, err := DecodeCursor(EncodeCursor(60))
	require.NoError(t, err)
	assert.Equal(t, 60, offset)

	offset, err = DecodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, 0, offset)

	for _, bad := range []string{"!!", "eDox", EncodeCursor(-1)} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestValidateEmoji(t *testing.T) {
	assert.NoError(t, validateEmoji("🔥"))
	assert.ErrorIs(t, validateEmoji(""), ErrInvalidEmoji)
	assert.ErrorIs(t, validateEmoji(strings.Repeat("a", 17)), ErrInvalidEmoji)
}
