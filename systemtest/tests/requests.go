package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelframe/playerhub/internal/content"
	"github.com/pixelframe/playerhub/internal/router"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var rerr *router.Error
	require.True(t, errors.As(err, &rerr), "expected router error, got %v", err)
	assert.Equal(t, code, rerr.Code)
}

func postIDs(t *testing.T, fields router.Fields) []int64 {
	t.Helper()
	posts, ok := fields["posts"].([]content.Post)
	require.True(t, ok)
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

func TestPlayerRequests(t *testing.T, env *Env) {
	viewer := createAccount(t, env, "requests-viewer", false)
	artist := createAccount(t, env, "requests-artist", false)
	token := tokenFor(t, env, viewer)

	public := createPost(t, env, artist, "sunrise", true)
	hidden := createPost(t, env, artist, "draft", false)
	own := createPost(t, env, viewer, "selfie", true)

	playerID := register(t, env, token, provision(t, env).RegistrationCode, "Desk").ID
	secondID := register(t, env, token, provision(t, env).RegistrationCode, "Shelf").ID

	t.Run("unknown player", func(t *testing.T) {
		_, err := request(t, env, uuid.NewString(), map[string]any{"request_type": "query_posts"})
		requireCode(t, err, router.CodeAuthentication)
	})

	t.Run("query posts hides invisible content", func(t *testing.T) {
		fields, err := request(t, env, playerID, map[string]any{"request_type": "query_posts"})
		require.NoError(t, err)
		ids := postIDs(t, fields)
		assert.Contains(t, ids, public)
		assert.Contains(t, ids, own)
		assert.NotContains(t, ids, hidden)
	})

	t.Run("random sort echoes seed", func(t *testing.T) {
		first, err := request(t, env, playerID, map[string]any{"request_type": "query_posts", "sort": "random", "random_seed": 42})
		require.NoError(t, err)
		second, err := request(t, env, playerID, map[string]any{"request_type": "query_posts", "sort": "random", "random_seed": 42})
		require.NoError(t, err)
		assert.Equal(t, int64(42), first["random_seed"])
		assert.Equal(t, postIDs(t, first), postIDs(t, second))
	})

	t.Run("get hidden post", func(t *testing.T) {
		_, err := request(t, env, playerID, map[string]any{"request_type": "get_post", "post_id": hidden})
		requireCode(t, err, router.CodeNotFound)
	})

	t.Run("reaction cap", func(t *testing.T) {
		for _, emoji := range []string{"🔥", "❤️", "👍", "🎨", "✨"} {
			_, err := request(t, env, playerID, map[string]any{"request_type": "submit_reaction", "post_id": public, "emoji": emoji})
			require.NoError(t, err)
		}

		_, err := request(t, env, playerID, map[string]any{"request_type": "submit_reaction", "post_id": public, "emoji": "🌈"})
		requireCode(t, err, router.CodeReactionLimit)

		_, err = request(t, env, playerID, map[string]any{"request_type": "submit_reaction", "post_id": public, "emoji": "🔥"})
		assert.NoError(t, err)

		_, err = request(t, env, playerID, map[string]any{"request_type": "revoke_reaction", "post_id": public, "emoji": "🔥"})
		require.NoError(t, err)
		_, err = request(t, env, playerID, map[string]any{"request_type": "submit_reaction", "post_id": public, "emoji": "🌈"})
		assert.NoError(t, err)
	})

	t.Run("comments stop at depth two", func(t *testing.T) {
		ctx := context.Background()
		var parent string
		for depth := 0; depth <= 3; depth++ {
			var id string
			var parentArg any
			if parent != "" {
				parentArg = parent
			}
			err := env.Pool.QueryRow(ctx,
				"INSERT INTO comments (post_id, parent_id, author_id, depth, body) VALUES ($1, $2::uuid, $3::uuid, $4, $5) RETURNING id::text",
				public, parentArg, artist, depth, "reply").Scan(&id)
			require.NoError(t, err)
			parent = id
		}

		fields, err := request(t, env, playerID, map[string]any{"request_type": "get_comments", "post_id": public})
		require.NoError(t, err)
		comments, ok := fields["comments"].([]content.Comment)
		require.True(t, ok)
		assert.Len(t, comments, 3)
	})

	t.Run("views", func(t *testing.T) {
		ts := time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)

		fields, err := request(t, env, playerID, map[string]any{"request_type": "submit_view", "post_id": public, "timestamp": ts})
		require.NoError(t, err)
		assert.Equal(t, true, fields["recorded"])

		_, err = request(t, env, playerID, map[string]any{"request_type": "submit_view", "post_id": public, "timestamp": ts})
		requireCode(t, err, router.CodeDuplicate)

		later := time.Now().UTC().Add(time.Second).Truncate(time.Second).Format(time.RFC3339)
		_, err = request(t, env, playerID, map[string]any{"request_type": "submit_view", "post_id": public, "timestamp": later})
		requireCode(t, err, router.CodeRateLimited)

		fields, err = request(t, env, secondID, map[string]any{"request_type": "submit_view", "post_id": own, "timestamp": ts})
		require.NoError(t, err)
		assert.Equal(t, false, fields["recorded"])

		events := env.Queue.Drain()
		require.Len(t, events, 1)
		assert.Equal(t, public, events[0].PostID)
		assert.Equal(t, viewer, events[0].ViewerAccountID)
		assert.Equal(t, artist, events[0].PostOwnerID)
	})
}
