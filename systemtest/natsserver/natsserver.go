package natsserver

import (
	"context"
	"fmt"

	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
)

// StartNATS runs a throwaway JetStream-enabled NATS server and returns it
// with its client URL.
func StartNATS(ctx context.Context) (*tcnats.NATSContainer, string, error) {
	container, err := tcnats.Run(ctx, "nats:2.10-alpine")
	if err != nil {
		return nil, "", fmt.Errorf("failed to start NATS container: %w", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get NATS url: %w", err)
	}

	return container, url, nil
}

func TerminateNATS(ctx context.Context, container *tcnats.NATSContainer) error {
	if err := container.Terminate(ctx); err != nil {
		return fmt.Errorf("failed to terminate NATS container: %w", err)
	}
	return nil
}
