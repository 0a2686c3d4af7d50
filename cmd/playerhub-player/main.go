package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pixelframe/playerhub/internal/broker"
	"github.com/pixelframe/playerhub/internal/commands"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/presence"
)

var AppVersion string

func main() {
	InitConfig()

	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "provision":
		err = runProvision(args)
	case "credentials":
		err = runCredentials(args)
	case "run":
		err = run()
	default:
		err = fmt.Errorf("unknown command %q (want provision, credentials or run)", cmd)
	}
	if err != nil {
		slog.Error("Player command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

// run connects with the stored certificate, prints every command it
// receives and reports presence until interrupted.
func run() error {
	slog.Info("Playerhub Player", "version", AppVersion)

	st, err := loadState(config.Player.StateFile)
	if err != nil {
		return err
	}

	tlsConfig, err := broker.LoadClientTLS(
		filepath.Join(config.Player.CertDir, "ca.pem"),
		filepath.Join(config.Player.CertDir, "player.pem"),
		filepath.Join(config.Player.CertDir, "player.key"),
	)
	if err != nil {
		return fmt.Errorf("failed to load credentials, run credentials first: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := broker.NewClient(broker.Config{
		URL:            fmt.Sprintf("ssl://%s:%d", st.BrokerHost, st.BrokerPort),
		Username:       st.PlayerKey,
		Namespace:      config.Server.Namespace,
		ClientIDPrefix: "player-" + st.PlayerKey,
	}, broker.RolePublisher, broker.WithTLSConfig(tlsConfig))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	topics := broker.NewTopics(config.Server.Namespace)
	sub := broker.NewSubscriber(client, topics.Command(st.PlayerKey), printCommand)

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx) }()

	heartbeat(ctx, client, topics.Status(st.PlayerKey), players.ConnectionOnline)
	ticker := time.NewTicker(config.Player.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			offlineCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			heartbeat(offlineCtx, client, topics.Status(st.PlayerKey), players.ConnectionOffline)
			cancel()
			return <-done
		case err := <-done:
			return err
		case <-ticker.C:
			heartbeat(ctx, client, topics.Status(st.PlayerKey), players.ConnectionOnline)
		}
	}
}

func heartbeat(ctx context.Context, pub broker.Publisher, topic string, status players.ConnectionStatus) {
	firmware := config.Player.FirmwareVersion
	data, err := json.Marshal(presence.Status{Status: status, FirmwareVersion: &firmware})
	if err != nil {
		slog.Error("Failed to encode heartbeat", "error", err)
		return
	}
	if !pub.Publish(ctx, topic, data, broker.QoSAtLeastOnce, false) {
		slog.Warn("Heartbeat not acknowledged", "status", status)
	}
}

func printCommand(_ context.Context, msg broker.Message) {
	var cmd commands.Command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		slog.Warn("Ignoring malformed command", "topic", msg.Topic, "error", err)
		return
	}
	fmt.Printf("%s  %-14s %s  %s\n", cmd.Timestamp.Local().Format(time.TimeOnly), cmd.Type, cmd.ID, string(cmd.Payload))
}
