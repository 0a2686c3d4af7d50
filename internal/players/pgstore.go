package players

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/commandlog"
	"github.com/pixelframe/playerhub/internal/db"
	"github.com/pixelframe/playerhub/internal/db/sqlc"
)

const uniqueViolation = "23505"

type PGStore struct {
	pool    *pgxpool.Pool
	queries *sqlc.Queries
	log     *commandlog.Service
}

func NewPGStore(pool *pgxpool.Pool, log *commandlog.Service) *PGStore {
	return &PGStore{
		pool:    pool,
		queries: sqlc.New(pool),
		log:     log,
	}
}

func (s *PGStore) CreatePending(ctx context.Context, model, firmware, code string, expiresAt time.Time) (*Player, error) {
	row, err := s.queries.CreatePendingPlayer(ctx, sqlc.CreatePendingPlayerParams{
		DeviceModel:               model,
		FirmwareVersion:           firmware,
		RegistrationCode:          pgtype.Text{String: code, Valid: true},
		RegistrationCodeExpiresAt: pgtype.Timestamptz{Time: expiresAt, Valid: true},
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrCodeCollision
		}
		return nil, fmt.Errorf("failed to create player: %w", err)
	}
	return toPlayer(row), nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Player, error) {
	pid, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}

	row, err := s.queries.GetPlayer(ctx, pid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return toPlayer(row), nil
}

func (s *PGStore) Claim(ctx context.Context, claim Claim) (*Player, error) {
	owner, ok := parseID(claim.OwnerID)
	if !ok {
		return nil, ErrInvalidCode
	}

	var player *Player
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		// Serialises registrations per owner so the cap cannot be overrun.
		if err := q.AcquireXactLock(ctx, "player_owner:"+claim.OwnerID); err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}

		count, err := q.CountPlayersByOwner(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to count players: %w", err)
		}
		if count >= int64(claim.MaxPerOwner) {
			return ErrDeviceLimitReached
		}

		row, err := q.ClaimPendingPlayerByCode(ctx, sqlc.ClaimPendingPlayerByCodeParams{
			RegistrationCode: pgtype.Text{String: claim.Code, Valid: true},
			OwnerID:          owner,
			Name:             claim.Name,
		})
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("failed to claim player: %w", err)
			}
			used, err := q.RedemptionExists(ctx, claim.CodeHash)
			if err != nil {
				return fmt.Errorf("failed to check redemption: %w", err)
			}
			if used {
				return ErrCodeAlreadyUsed
			}
			return ErrInvalidCode
		}

		if err := q.CreateRedemption(ctx, sqlc.CreateRedemptionParams{
			CodeHash: claim.CodeHash,
			PlayerID: row.ID,
		}); err != nil {
			return fmt.Errorf("failed to record redemption: %w", err)
		}

		player = toPlayer(row)
		return s.log.WithTx(tx).Write(ctx, player.ID, commandlog.TypeRegistered, map[string]any{
			"owner_id":     player.OwnerID,
			"name":         player.Name,
			"device_model": player.DeviceModel,
		})
	})
	if err != nil {
		return nil, err
	}
	return player, nil
}

// SetCertificate stores issued as the current certificate and records its
// serial so that removal can revoke every certificate the player holds.
func (s *PGStore) SetCertificate(ctx context.Context, id string, issued *cert.Issued) error {
	pid, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}

	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		q := s.queries.WithTx(tx)

		n, err := q.SetPlayerCertificate(ctx, sqlc.SetPlayerCertificateParams{
			ID:               pid,
			CertPem:          pgtype.Text{String: issued.CertPEM, Valid: true},
			KeyPem:           pgtype.Text{String: issued.KeyPEM, Valid: true},
			CertSerialNumber: pgtype.Text{String: issued.Serial, Valid: true},
			CertIssuedAt:     pgtype.Timestamptz{Time: issued.IssuedAt, Valid: true},
			CertExpiresAt:    pgtype.Timestamptz{Time: issued.ExpiresAt, Valid: true},
		})
		if err != nil {
			return fmt.Errorf("failed to store certificate: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}

		if err := q.RecordPlayerCertificate(ctx, sqlc.RecordPlayerCertificateParams{
			SerialNumber: issued.Serial,
			PlayerID:     pid,
			IssuedAt:     pgtype.Timestamptz{Time: issued.IssuedAt, Valid: true},
			ExpiresAt:    pgtype.Timestamptz{Time: issued.ExpiresAt, Valid: true},
		}); err != nil {
			return fmt.Errorf("failed to record certificate: %w", err)
		}
		return nil
	})
}

func (s *PGStore) LiveCertificates(ctx context.Context, id string, at time.Time) ([]string, error) {
	pid, ok := parseID(id)
	if !ok {
		return nil, nil
	}
	serials, err := s.queries.ListLivePlayerCertificateSerials(ctx, sqlc.ListLivePlayerCertificateSerialsParams{
		PlayerID:  pid,
		ExpiresAt: pgtype.Timestamptz{Time: at, Valid: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return serials, nil
}

func (s *PGStore) ListByOwner(ctx context.Context, ownerID string, registeredOnly bool) ([]Player, error) {
	owner, ok := parseID(ownerID)
	if !ok {
		return nil, nil
	}

	var rows []sqlc.Player
	var err error
	if registeredOnly {
		rows, err = s.queries.ListRegisteredPlayersByOwner(ctx, owner)
	} else {
		rows, err = s.queries.ListPlayersByOwner(ctx, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}

	result := make([]Player, len(rows))
	for i, r := range rows {
		result[i] = *toPlayer(r)
	}
	return result, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) (bool, error) {
	pid, ok := parseID(id)
	if !ok {
		return false, nil
	}
	n, err := s.queries.DeletePlayer(ctx, pid)
	if err != nil {
		return false, fmt.Errorf("failed to delete player: %w", err)
	}
	return n > 0, nil
}

func (s *PGStore) UpdatePresence(ctx context.Context, id string, p Presence) (bool, error) {
	pid, ok := parseID(id)
	if !ok {
		return false, nil
	}

	params := sqlc.UpdatePlayerPresenceParams{
		ID:               pid,
		ConnectionStatus: sqlc.PlayerConnectionStatus(p.Status),
		LastSeenAt:       pgtype.Timestamptz{Time: p.SeenAt, Valid: true},
	}
	if p.CurrentPostID != nil {
		params.CurrentPostID = pgtype.Int8{Int64: *p.CurrentPostID, Valid: true}
	}
	if p.FirmwareVersion != nil {
		params.FirmwareVersion = pgtype.Text{String: *p.FirmwareVersion, Valid: true}
	}

	n, err := s.queries.UpdatePlayerPresence(ctx, params)
	if err != nil {
		return false, fmt.Errorf("failed to update presence: %w", err)
	}
	return n > 0, nil
}

func (s *PGStore) SetCurrentPost(ctx context.Context, id string, postID int64) error {
	pid, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}
	if err := s.queries.UpdatePlayerCurrentPost(ctx, sqlc.UpdatePlayerCurrentPostParams{
		ID:            pid,
		CurrentPostID: pgtype.Int8{Int64: postID, Valid: true},
	}); err != nil {
		return fmt.Errorf("failed to set current post: %w", err)
	}
	return nil
}

func (s *PGStore) PurgeExpired(ctx context.Context, pendingBefore, redemptionsBefore time.Time) (int64, int64, error) {
	pending, err := s.queries.DeleteStalePendingPlayers(ctx, pgtype.Timestamptz{Time: pendingBefore, Valid: true})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge pending players: %w", err)
	}
	redemptions, err := s.queries.DeleteRedemptionsBefore(ctx, pgtype.Timestamptz{Time: redemptionsBefore, Valid: true})
	if err != nil {
		return pending, 0, fmt.Errorf("failed to purge redemptions: %w", err)
	}
	return pending, redemptions, nil
}

func parseID(id string) (pgtype.UUID, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return pgtype.UUID{}, false
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, true
}

func uuidToString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func toPlayer(row sqlc.Player) *Player {
	p := &Player{
		ID:                        uuidToString(row.ID),
		OwnerID:                   uuidToString(row.OwnerID),
		Name:                      row.Name,
		DeviceModel:               row.DeviceModel,
		FirmwareVersion:           row.FirmwareVersion,
		RegistrationStatus:        RegistrationStatus(row.RegistrationStatus),
		RegistrationCode:          row.RegistrationCode.String,
		RegistrationCodeExpiresAt: timePtr(row.RegistrationCodeExpiresAt),
		RegisteredAt:              timePtr(row.RegisteredAt),
		ConnectionStatus:          ConnectionStatus(row.ConnectionStatus),
		LastSeenAt:                timePtr(row.LastSeenAt),
		CertPEM:                   row.CertPem.String,
		KeyPEM:                    row.KeyPem.String,
		CertSerialNumber:          row.CertSerialNumber.String,
		CertIssuedAt:              timePtr(row.CertIssuedAt),
		CertExpiresAt:             timePtr(row.CertExpiresAt),
		CreatedAt:                 row.CreatedAt.Time,
	}
	if row.CurrentPostID.Valid {
		id := row.CurrentPostID.Int64
		p.CurrentPostID = &id
	}
	return p
}

