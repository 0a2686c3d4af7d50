package systemtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/pixelframe/playerhub/internal/api/http"
	"github.com/pixelframe/playerhub/internal/auth"
	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/commandlog"
	"github.com/pixelframe/playerhub/internal/commands"
	"github.com/pixelframe/playerhub/internal/content"
	"github.com/pixelframe/playerhub/internal/counter"
	"github.com/pixelframe/playerhub/internal/db"
	"github.com/pixelframe/playerhub/internal/db/sqlc"
	"github.com/pixelframe/playerhub/internal/dedup"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/presence"
	"github.com/pixelframe/playerhub/internal/ratelimit"
	"github.com/pixelframe/playerhub/internal/router"
	"github.com/pixelframe/playerhub/internal/views"
	pgcontainer "github.com/pixelframe/playerhub/systemtest/postgres"
	"github.com/pixelframe/playerhub/systemtest/tests"
)

const maxPerOwner = 3

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, dsn, err := pgcontainer.StartPostgres(ctx, "playerhub", "playerhub", "playerhub")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgcontainer.TerminatePostgres(ctx, container) })

	dbConfig := db.Config{Url: dsn, Schema: "playerhub"}
	require.NoError(t, db.RunMigrations(ctx, dbConfig))
	pool, err := db.InitDB(ctx, dbConfig)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	certDir := t.TempDir()
	authority, err := cert.New(cert.Config{
		CertFile:  filepath.Join(certDir, "ca.crt"),
		KeyFile:   filepath.Join(certDir, "ca.key"),
		CRLFile:   filepath.Join(certDir, "ca.crl"),
		Bootstrap: true,
	})
	require.NoError(t, err)

	env := &tests.Env{
		Pool:      pool,
		Queue:     views.NewMemoryQueue(0),
		Publisher: &tests.RecordingPublisher{},
		Authority: authority,
		Auth:      auth.Config{JWTSecret: "systemtest-secret"},
	}

	store := counter.NewMemoryStore()
	limiter := ratelimit.New(store)
	topics := broker.NewTopics("playerhub")
	commandLog := commandlog.NewService(sqlc.New(pool))

	playerSvc := players.NewService(
		players.NewPGStore(pool, commandLog),
		authority,
		broker.NewAdmin(env.Publisher),
		commandLog,
		players.Config{MaxPerOwner: maxPerOwner, BrokerHost: "localhost", BrokerPort: 8883},
	)
	contentSvc := content.NewService(pool)
	pipeline := views.NewPipeline(topics, playerSvc, contentSvc, dedup.New(store, 0), limiter, env.Queue, env.Publisher)
	env.Router = router.New(topics, playerSvc, contentSvc, pipeline, env.Publisher)
	env.Tracker = presence.NewTracker(topics, playerSvc)

	gin.SetMode(gin.TestMode)
	env.Engine = gin.New()
	internalhttp.SetupRoute(env.Engine, &internalhttp.Services{
		Players:    playerSvc,
		Commands:   commands.NewDispatcher(topics, playerSvc, contentSvc, limiter, commandLog, env.Publisher),
		CommandLog: commandLog,
		Authority:  authority,
		Identities: playerSvc,
		Limiter:    limiter,
		JWTSecret:  env.Auth.JWTSecret,
		BrokerHost: "localhost",
		BrokerPort: 8883,
	})

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, env) })
	t.Run("PlayerLifecycle", func(t *testing.T) { tests.TestPlayerLifecycle(t, env) })
	t.Run("DeviceLimit", func(t *testing.T) { tests.TestDeviceLimit(t, env, maxPerOwner) })
	t.Run("PlayerRequests", func(t *testing.T) { tests.TestPlayerRequests(t, env) })
	t.Run("PlayerPresence", func(t *testing.T) { tests.TestPlayerPresence(t, env) })
}
