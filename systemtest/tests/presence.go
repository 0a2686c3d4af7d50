package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceRow struct {
	status        string
	lastSeen      pgtype.Timestamptz
	currentPostID pgtype.Int8
	firmware      string
}

func loadPresence(t *testing.T, env *Env, playerID string) presenceRow {
	t.Helper()
	var row presenceRow
	err := env.Pool.QueryRow(context.Background(),
		"SELECT connection_status::text, last_seen_at, current_post_id, firmware_version FROM players WHERE id = $1::uuid",
		playerID).Scan(&row.status, &row.lastSeen, &row.currentPostID, &row.firmware)
	require.NoError(t, err)
	return row
}

func TestPlayerPresence(t *testing.T, env *Env) {
	owner := createAccount(t, env, "presence-owner", false)
	token := tokenFor(t, env, owner)
	player := register(t, env, token, provision(t, env).RegistrationCode, "Studio")
	postID := createPost(t, env, owner, "presence-art", true)

	ctx := context.Background()

	t.Run("heartbeat records status and current post", func(t *testing.T) {
		raw := fmt.Sprintf(`{"status":"online","current_post_id":%d,"firmware_version":"1.2.0"}`, postID)
		assert.Equal(t, "ok", env.Tracker.Apply(ctx, player.ID, []byte(raw)))

		row := loadPresence(t, env, player.ID)
		assert.Equal(t, "online", row.status)
		assert.True(t, row.lastSeen.Valid)
		require.True(t, row.currentPostID.Valid)
		assert.Equal(t, postID, row.currentPostID.Int64)
		assert.Equal(t, "1.2.0", row.firmware)
	})

	t.Run("heartbeat naming a missing post still updates presence", func(t *testing.T) {
		before := loadPresence(t, env, player.ID)
		time.Sleep(10 * time.Millisecond)

		raw := fmt.Sprintf(`{"status":"offline","current_post_id":%d}`, postID+1_000_000)
		assert.Equal(t, "ok", env.Tracker.Apply(ctx, player.ID, []byte(raw)))

		row := loadPresence(t, env, player.ID)
		assert.Equal(t, "offline", row.status)
		assert.True(t, row.lastSeen.Time.After(before.lastSeen.Time))
		require.True(t, row.currentPostID.Valid)
		assert.Equal(t, postID, row.currentPostID.Int64)
	})

	t.Run("deleted post keeps heartbeats flowing", func(t *testing.T) {
		_, err := env.Pool.Exec(ctx, "DELETE FROM posts WHERE id = $1", postID)
		require.NoError(t, err)

		raw := fmt.Sprintf(`{"status":"online","current_post_id":%d}`, postID)
		assert.Equal(t, "ok", env.Tracker.Apply(ctx, player.ID, []byte(raw)))

		row := loadPresence(t, env, player.ID)
		assert.Equal(t, "online", row.status)
		assert.False(t, row.currentPostID.Valid)
	})
}
