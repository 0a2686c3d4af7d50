package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	internalhttp "github.com/pixelframe/playerhub/internal/api/http"
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
)

var AppVersion string

const (
	shutdownTimeout     = 10 * time.Second
	counterBucketMaxAge = 15 * time.Minute
	memorySweepInterval = time.Minute
	memoryQueueLimit    = 10000
)

// stores bundles the shared counter state and the view handoff.
type stores struct {
	counters counter.Store
	markers  counter.Store
	queue    views.Queue
	close    func()
}

func main() {
	InitConfig()

	slog.Info("Playerhub Server", "version", AppVersion)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(ctx, config.DB); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	pool, err := db.InitDB(ctx, config.DB)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	authority, err := cert.New(config.CA)
	if err != nil {
		slog.Error("Failed to initialise certificate authority", "error", err)
		os.Exit(1)
	}
	ensureBrokerCertificate(authority)

	st, err := openStores(ctx)
	if err != nil {
		slog.Error("Failed to open counter stores", "error", err)
		os.Exit(1)
	}
	defer st.close()

	limiter := ratelimit.New(st.counters)
	dd := dedup.New(st.markers, dedup.DefaultTTL)
	topics := broker.NewTopics(config.MQTT.Namespace)

	clients, err := connectBroker(ctx)
	if err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()
	publisher := clients[broker.RolePublisher]

	queries := sqlc.New(pool)
	commandLog := commandlog.NewService(queries)
	playerSvc := players.NewService(
		players.NewPGStore(pool, commandLog),
		authority,
		broker.NewAdmin(clients[broker.RoleAdmin]),
		commandLog,
		players.Config{
			CodeTTL:      config.Players.CodeTTL,
			MaxPerOwner:  config.Players.MaxPerOwner,
			ValidityDays: config.CA.ValidityDays,
			BrokerHost:   config.MQTT.PublicHost,
			BrokerPort:   config.MQTT.PublicPort,
		},
	)
	playerSvc.StartCleanup(ctx, config.Players.CleanupInterval)

	contentSvc := content.NewService(pool)
	pipeline := views.NewPipeline(topics, playerSvc, contentSvc, dd, limiter, st.queue, publisher)
	requestRouter := router.New(topics, playerSvc, contentSvc, pipeline, publisher)
	dispatcher := commands.NewDispatcher(topics, playerSvc, contentSvc, limiter, commandLog, publisher)
	tracker := presence.NewTracker(topics, playerSvc)

	subscribers := []*broker.Subscriber{
		broker.NewSubscriber(clients[broker.RoleRequests], topics.RequestFilter(), requestRouter.HandleMessage),
		broker.NewSubscriber(clients[broker.RoleViews], topics.ViewFilter(), pipeline.HandleMessage),
		broker.NewSubscriber(clients[broker.RoleStatus], topics.StatusFilter(), tracker.HandleMessage),
	}

	services := &internalhttp.Services{
		Players:        playerSvc,
		Commands:       dispatcher,
		CommandLog:     commandLog,
		Authority:      authority,
		Identities:     playerSvc,
		Limiter:        limiter,
		JWTSecret:      config.Auth.JWTSecret,
		AdminAPIKey:    config.Http.AdminAPIKey,
		BrokerHost:     config.MQTT.PublicHost,
		BrokerPort:     config.MQTT.PublicPort,
		MetricsEnabled: config.Metrics.Enabled,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, len(subscribers)+1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var subWG sync.WaitGroup
	for _, sub := range subscribers {
		subWG.Add(1)
		go func(s *broker.Subscriber) {
			defer subWG.Done()
			if err := s.Run(ctx); err != nil {
				errChan <- err
			}
		}(sub)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server stopped")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		cancel()
		subWG.Wait()
		slog.Info("Broker subscribers stopped")
	}()

	wg.Wait()
	slog.Info("Shutdown complete")
}

// openStores uses NATS JetStream when configured and process memory
// otherwise. Memory mode only suits a single instance.
func openStores(ctx context.Context) (*stores, error) {
	if config.NATS.URL == "" {
		slog.Warn("NATS not configured, rate limits and dedup are process-local")
		mem := counter.NewMemoryStore()
		queue := views.NewMemoryQueue(memoryQueueLimit)
		go sweepMemory(ctx, mem, queue)
		return &stores{counters: mem, markers: mem, queue: queue, close: func() {}}, nil
	}

	nc, err := nats.Connect(config.NATS.URL,
		nats.Name("playerhub-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	counterKV, err := counter.OpenBucket(ctx, js, config.NATS.CounterBucket, counterBucketMaxAge)
	if err != nil {
		nc.Close()
		return nil, err
	}
	dedupKV, err := counter.OpenBucket(ctx, js, config.NATS.DedupBucket, 2*dedup.DefaultTTL)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if _, err := views.EnsureStream(ctx, js, config.NATS.ViewStream, config.NATS.ViewSubject); err != nil {
		nc.Close()
		return nil, err
	}

	slog.Info("Connected to NATS", "url", nc.ConnectedUrl())
	return &stores{
		counters: counter.NewNATSStore(counterKV),
		markers:  counter.NewNATSStore(dedupKV),
		queue:    views.NewJetStreamQueue(js, config.NATS.ViewSubject),
		close:    func() { _ = nc.Drain() },
	}, nil
}

// sweepMemory expires stale counters and empties the in-process view queue,
// which has no downstream consumer.
func sweepMemory(ctx context.Context, mem *counter.MemoryStore, queue *views.MemoryQueue) {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := mem.Sweep()
			drained := len(queue.Drain())
			slog.Debug("Swept in-memory state", "expired_keys", removed, "view_events", drained)
		}
	}
}

func connectBroker(ctx context.Context) (map[broker.Role]*broker.Client, error) {
	var opts []broker.Option
	if config.MQTT.CAFile != "" {
		tlsConfig, err := broker.LoadClientTLS(config.MQTT.CAFile, "", "")
		if err != nil {
			return nil, err
		}
		opts = append(opts, broker.WithTLSConfig(tlsConfig))
	}

	roles := []broker.Role{broker.RolePublisher, broker.RoleRequests, broker.RoleStatus, broker.RoleViews, broker.RoleAdmin}
	clients := make(map[broker.Role]*broker.Client, len(roles))
	for _, role := range roles {
		c := broker.NewClient(config.MQTT, role, opts...)
		if err := c.Connect(ctx); err != nil {
			for _, open := range clients {
				open.Close()
			}
			return nil, err
		}
		clients[role] = c
	}
	return clients, nil
}

func ensureBrokerCertificate(authority *cert.Authority) {
	if config.BrokerTLS.CertFile == "" || config.BrokerTLS.KeyFile == "" {
		return
	}

	var ips []net.IP
	for _, raw := range ParseCommaSeparated(config.BrokerTLS.IPAddresses) {
		if ip := net.ParseIP(raw); ip != nil {
			ips = append(ips, ip)
		} else {
			slog.Warn("Ignoring invalid broker IP address", "ip", raw)
		}
	}

	err := authority.EnsureBrokerCertificate(
		config.BrokerTLS.CertFile,
		config.BrokerTLS.KeyFile,
		ParseCommaSeparated(config.BrokerTLS.DomainNames),
		ips,
	)
	if err != nil {
		slog.Error("Failed to ensure broker certificate", "error", err)
	}
}
