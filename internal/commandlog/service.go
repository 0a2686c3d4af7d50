package commandlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pixelframe/playerhub/internal/db/sqlc"
)

// Pseudo-command types written by lifecycle events.
const (
	TypeRegistered = "player_registered"
	TypeRemoved    = "player_removed"
	TypeSkipped    = "command_skipped"
	TypeCertRenew  = "certificate_renewed"
)

const defaultListLimit = 50

type Entry struct {
	ID          int64
	PlayerID    string
	CommandType string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// Writer appends to the command log. playerID may be empty.
type Writer interface {
	Write(ctx context.Context, playerID string, commandType string, payload any) error
}

type Service struct {
	queries *sqlc.Queries
}

func NewService(queries *sqlc.Queries) *Service {
	return &Service{queries: queries}
}

// WithTx returns a Service whose writes join tx.
func (s *Service) WithTx(tx pgx.Tx) *Service {
	return &Service{queries: s.queries.WithTx(tx)}
}

func (s *Service) Write(ctx context.Context, playerID string, commandType string, payload any) error {
	_, err := s.Append(ctx, playerID, commandType, payload)
	return err
}

func (s *Service) Append(ctx context.Context, playerID string, commandType string, payload any) (*Entry, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	pid, err := optionalUUID(playerID)
	if err != nil {
		return nil, err
	}

	row, err := s.queries.CreateCommandLog(ctx, sqlc.CreateCommandLogParams{
		PlayerID:    pid,
		CommandType: commandType,
		Payload:     data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write command log: %w", err)
	}
	return toEntry(row), nil
}

func (s *Service) ListForPlayer(ctx context.Context, playerID string, limit int) ([]Entry, error) {
	pid, err := optionalUUID(playerID)
	if err != nil || !pid.Valid {
		return nil, fmt.Errorf("invalid player ID %q", playerID)
	}
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	rows, err := s.queries.ListCommandLogsByPlayer(ctx, sqlc.ListCommandLogsByPlayerParams{
		PlayerID: pid,
		Limit:    int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list command log: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = *toEntry(r)
	}
	return entries, nil
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return []byte("{}"), nil
		}
		return p, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command log payload: %w", err)
	}
	return data, nil
}

func optionalUUID(id string) (pgtype.UUID, error) {
	if id == "" {
		return pgtype.UUID{}, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("invalid player ID: %w", err)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func toEntry(row sqlc.CommandLog) *Entry {
	e := &Entry{
		ID:          row.ID,
		CommandType: row.CommandType,
		Payload:     json.RawMessage(row.Payload),
		CreatedAt:   row.CreatedAt.Time,
	}
	if row.PlayerID.Valid {
		e.PlayerID = uuid.UUID(row.PlayerID.Bytes).String()
	}
	return e
}
