package players

import (
	"context"
	"errors"
	"time"

	"github.com/pixelframe/playerhub/internal/cert"
)

var (
	// ErrNotFound is returned for unknown players and for players the caller
	// does not own.
	ErrNotFound             = errors.New("player not found")
	ErrInvalidCode          = errors.New("invalid or expired registration code")
	ErrCodeAlreadyUsed      = errors.New("registration code already used")
	ErrDeviceLimitReached   = errors.New("player limit reached for this account")
	ErrAuthenticationFailed = errors.New("player authentication failed")
	ErrInvalidName          = errors.New("invalid player name")
	ErrCodeCollision        = errors.New("registration code collision")
)

// Store persists players. Implementations must make Claim atomic: the cap
// check, the claim, the redemption record and the log entry commit together.
type Store interface {
	CreatePending(ctx context.Context, model, firmware, code string, expiresAt time.Time) (*Player, error)
	Get(ctx context.Context, id string) (*Player, error)
	Claim(ctx context.Context, claim Claim) (*Player, error)
	SetCertificate(ctx context.Context, id string, issued *cert.Issued) error
	// LiveCertificates lists the serials of every certificate issued to the
	// player that has not expired at the given time.
	LiveCertificates(ctx context.Context, id string, at time.Time) ([]string, error)
	ListByOwner(ctx context.Context, ownerID string, registeredOnly bool) ([]Player, error)
	Delete(ctx context.Context, id string) (bool, error)
	UpdatePresence(ctx context.Context, id string, p Presence) (bool, error)
	SetCurrentPost(ctx context.Context, id string, postID int64) error
	PurgeExpired(ctx context.Context, pendingBefore, redemptionsBefore time.Time) (int64, int64, error)
}
