package players

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/commandlog"
)

const (
	DefaultCodeTTL     = 15 * time.Minute
	DefaultMaxPerOwner = 128
	redemptionTTL      = 24 * time.Hour
	codeAttempts       = 5
	maxNameLength      = 100
)

// CertificateAuthority issues and revokes player identities.
type CertificateAuthority interface {
	Issue(playerKey string, validityDays int) (*cert.Issued, error)
	Renew(playerKey string, currentExpiry time.Time, validityDays int) (*cert.Issued, error)
	Revoke(serial string) error
	CACertPEM() (string, error)
}

// BrokerAdmin manages the broker-side credential of a player.
type BrokerAdmin interface {
	AddPlayer(ctx context.Context, playerKey string) error
	DisconnectPlayer(ctx context.Context, playerKey string) error
	RemovePlayer(ctx context.Context, playerKey string) error
}

type Config struct {
	CodeTTL      time.Duration
	MaxPerOwner  int
	ValidityDays int
	BrokerHost   string
	BrokerPort   int
}

type Service struct {
	store  Store
	ca     CertificateAuthority
	admin  BrokerAdmin
	log    commandlog.Writer
	cfg    Config
	locks  *keyedMutex
	now    func() time.Time
	newKey func() (string, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newKey = gen }
}

func NewService(store Store, ca CertificateAuthority, admin BrokerAdmin, log commandlog.Writer, cfg Config, opts ...Option) *Service {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.MaxPerOwner <= 0 {
		cfg.MaxPerOwner = DefaultMaxPerOwner
	}
	s := &Service{
		store:  store,
		ca:     ca,
		admin:  admin,
		log:    log,
		cfg:    cfg,
		locks:  newKeyedMutex(),
		now:    time.Now,
		newKey: GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provision creates a pending player with a fresh registration code.
func (s *Service) Provision(ctx context.Context, model, firmware string) (*Provisioned, error) {
	for attempt := 1; attempt <= codeAttempts; attempt++ {
		code, err := s.newKey()
		if err != nil {
			return nil, err
		}

		expiresAt := s.now().Add(s.cfg.CodeTTL)
		player, err := s.store.CreatePending(ctx, model, firmware, code, expiresAt)
		if errors.Is(err, ErrCodeCollision) {
			slog.Debug("Registration code collision, retrying", "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.Info("Player provisioned", "player_id", player.ID, "device_model", model, "expires_at", expiresAt)
		return &Provisioned{
			PlayerID:         player.ID,
			RegistrationCode: code,
			ExpiresAt:        expiresAt,
		}, nil
	}
	return nil, fmt.Errorf("failed to allocate registration code after %d attempts: %w", codeAttempts, ErrCodeCollision)
}

// Register binds the pending player holding code to ownerID and issues its
// first certificate. A failed issuance leaves the player registered with
// credentials pending; Credentials retries it.
func (s *Service) Register(ctx context.Context, code, ownerID, name string) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, ErrInvalidCode
	}

	player, err := s.store.Claim(ctx, Claim{
		Code:        code,
		CodeHash:    HashCode(code),
		OwnerID:     ownerID,
		Name:        name,
		MaxPerOwner: s.cfg.MaxPerOwner,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrCodeAlreadyUsed) {
			slog.Warn("Registration rejected", "owner_id", ownerID, "error", err)
		}
		return nil, err
	}

	slog.Info("Player registered", "player_id", player.ID, "owner_id", ownerID)

	unlock := s.locks.Lock(player.ID)
	if err := s.issue(ctx, player); err != nil {
		slog.Error("Certificate issuance failed, credentials pending", "player_id", player.ID, "error", err)
	}
	unlock()

	if s.admin != nil {
		if err := s.admin.AddPlayer(ctx, player.ID); err != nil {
			slog.Warn("Failed to add broker credential", "player_id", player.ID, "error", err)
		}
	}
	return player, nil
}

func (s *Service) issue(ctx context.Context, player *Player) error {
	issued, err := s.ca.Issue(player.ID, s.cfg.ValidityDays)
	if err != nil {
		return err
	}
	if err := s.store.SetCertificate(ctx, player.ID, issued); err != nil {
		return err
	}
	applyIssued(player, issued)
	return nil
}

func applyIssued(player *Player, issued *cert.Issued) {
	issuedAt, expiresAt := issued.IssuedAt, issued.ExpiresAt
	player.CertPEM = issued.CertPEM
	player.KeyPEM = issued.KeyPEM
	player.CertSerialNumber = issued.Serial
	player.CertIssuedAt = &issuedAt
	player.CertExpiresAt = &expiresAt
}

// Credentials returns the certificate bundle of a registered player.
// The player key is the only credential, so every miss looks the same.
func (s *Service) Credentials(ctx context.Context, playerID string) (*CredentialBundle, error) {
	player, err := s.store.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !player.Registered() {
		return nil, ErrNotFound
	}

	if !player.HasCredentials() {
		if player, err = s.retryIssue(ctx, playerID); err != nil {
			return nil, err
		}
	}

	caPEM, err := s.ca.CACertPEM()
	if err != nil {
		return nil, err
	}

	bundle := &CredentialBundle{
		PlayerID:   player.ID,
		CACertPEM:  caPEM,
		CertPEM:    player.CertPEM,
		KeyPEM:     player.KeyPEM,
		BrokerHost: s.cfg.BrokerHost,
		BrokerPort: s.cfg.BrokerPort,
	}
	if player.CertExpiresAt != nil {
		bundle.ExpiresAt = *player.CertExpiresAt
	}
	return bundle, nil
}

// retryIssue issues the missing certificate under the player lock, so a
// concurrent Remove either sees the new serial or the issuance finds no row.
func (s *Service) retryIssue(ctx context.Context, playerID string) (*Player, error) {
	unlock := s.locks.Lock(playerID)
	defer unlock()

	player, err := s.store.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !player.Registered() {
		return nil, ErrNotFound
	}
	if player.HasCredentials() {
		return player, nil
	}

	slog.Info("Retrying certificate issuance", "player_id", player.ID)
	if err := s.issue(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}
	return player, nil
}

// RenewCertificate replaces the certificate of an owned player once it is
// inside the renewal window. The previous certificate stays valid until it
// expires or the player is removed.
func (s *Service) RenewCertificate(ctx context.Context, playerID, ownerID string) (*Player, error) {
	unlock := s.locks.Lock(playerID)
	defer unlock()

	player, err := s.GetOwned(ctx, playerID, ownerID)
	if err != nil {
		return nil, err
	}
	if !player.Registered() {
		return nil, ErrNotFound
	}

	var issued *cert.Issued
	if player.CertExpiresAt == nil {
		issued, err = s.ca.Issue(player.ID, s.cfg.ValidityDays)
	} else {
		issued, err = s.ca.Renew(player.ID, *player.CertExpiresAt, s.cfg.ValidityDays)
	}
	if err != nil {
		return nil, err
	}

	previous := player.CertSerialNumber
	if err := s.store.SetCertificate(ctx, player.ID, issued); err != nil {
		return nil, err
	}
	applyIssued(player, issued)

	if err := s.log.Write(ctx, player.ID, commandlog.TypeCertRenew, map[string]any{
		"previous_serial": previous,
		"serial":          issued.Serial,
		"expires_at":      issued.ExpiresAt,
	}); err != nil {
		slog.Warn("Failed to log certificate renewal", "player_id", player.ID, "error", err)
	}

	slog.Info("Certificate renewed", "player_id", player.ID, "serial", issued.Serial)
	return player, nil
}

// Remove deletes an owned player. The removal is logged first, every
// unexpired certificate revoked next and the row deleted last, all under a
// per-player lock. Revocation and broker failures are logged and do not stop
// deletion.
func (s *Service) Remove(ctx context.Context, playerID, ownerID string) error {
	unlock := s.locks.Lock(playerID)
	defer unlock()

	player, err := s.GetOwned(ctx, playerID, ownerID)
	if err != nil {
		return err
	}

	serials := s.certificatesToRevoke(ctx, player)

	if err := s.log.Write(ctx, player.ID, commandlog.TypeRemoved, map[string]any{
		"player_id":    player.ID,
		"owner_id":     player.OwnerID,
		"name":         player.Name,
		"device_model": player.DeviceModel,
		"cert_serial":  player.CertSerialNumber,
		"cert_serials": serials,
	}); err != nil {
		return fmt.Errorf("failed to log removal: %w", err)
	}

	for _, serial := range serials {
		if err := s.ca.Revoke(serial); err != nil {
			slog.Error("Failed to revoke certificate", "player_id", player.ID, "serial", serial, "error", err)
		}
	}

	if s.admin != nil {
		if err := s.admin.DisconnectPlayer(ctx, player.ID); err != nil {
			slog.Warn("Failed to disconnect player session", "player_id", player.ID, "error", err)
		}
	}

	deleted, err := s.store.Delete(ctx, player.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	if s.admin != nil {
		if err := s.admin.RemovePlayer(ctx, player.ID); err != nil {
			slog.Warn("Failed to remove broker credential", "player_id", player.ID, "error", err)
		}
	}

	slog.Info("Player removed", "player_id", player.ID, "owner_id", player.OwnerID)
	return nil
}

// certificatesToRevoke returns every live serial of the player, current one
// included. A lookup failure falls back to the current serial alone.
func (s *Service) certificatesToRevoke(ctx context.Context, player *Player) []string {
	serials, err := s.store.LiveCertificates(ctx, player.ID, s.now())
	if err != nil {
		slog.Error("Failed to list player certificates", "player_id", player.ID, "error", err)
		serials = nil
	}
	if player.CertSerialNumber != "" && !slices.Contains(serials, player.CertSerialNumber) {
		serials = append(serials, player.CertSerialNumber)
	}
	return serials
}

// Authenticate resolves a player that may use the request channel: it must
// be registered and owned. Every rejection is ErrAuthenticationFailed.
func (s *Service) Authenticate(ctx context.Context, playerID string) (*Player, error) {
	player, err := s.store.Get(ctx, playerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}
	if !player.Registered() || player.OwnerID == "" {
		return nil, ErrAuthenticationFailed
	}
	return player, nil
}

func (s *Service) Get(ctx context.Context, playerID string) (*Player, error) {
	return s.store.Get(ctx, playerID)
}

// GetOwned hides players of other owners behind ErrNotFound.
func (s *Service) GetOwned(ctx context.Context, playerID, ownerID string) (*Player, error) {
	player, err := s.store.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if ownerID == "" || player.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return player, nil
}

func (s *Service) ListOwned(ctx context.Context, ownerID string) ([]Player, error) {
	return s.store.ListByOwner(ctx, ownerID, false)
}

func (s *Service) ListRegisteredOwned(ctx context.Context, ownerID string) ([]Player, error) {
	return s.store.ListByOwner(ctx, ownerID, true)
}

// UpdatePresence reports false when the player does not exist.
func (s *Service) UpdatePresence(ctx context.Context, playerID string, p Presence) (bool, error) {
	if !p.Status.Valid() {
		return false, fmt.Errorf("invalid connection status %q", p.Status)
	}
	if p.SeenAt.IsZero() {
		p.SeenAt = s.now()
	}
	return s.store.UpdatePresence(ctx, playerID, p)
}

func (s *Service) SetCurrentPost(ctx context.Context, playerID string, postID int64) error {
	return s.store.SetCurrentPost(ctx, playerID, postID)
}

// PurgeExpired drops pending players whose code expired and forgets old
// redemptions.
func (s *Service) PurgeExpired(ctx context.Context) error {
	now := s.now()
	pending, redemptions, err := s.store.PurgeExpired(ctx, now, now.Add(-redemptionTTL))
	if err != nil {
		return err
	}
	if pending > 0 || redemptions > 0 {
		slog.Info("Purged expired registrations", "pending_players", pending, "redemptions", redemptions)
	}
	return nil
}

// StartCleanup runs PurgeExpired every interval until ctx is done.
func (s *Service) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.PurgeExpired(ctx); err != nil {
					slog.Error("Registration cleanup failed", "error", err)
				}
			}
		}
	}()
}
