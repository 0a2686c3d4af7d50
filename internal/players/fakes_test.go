package players

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/pixelframe/playerhub/internal/cert"
)

type memoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	players     map[string]*Player
	redemptions map[string]time.Time
	certs       map[string][]cert.Issued
	logged      []string
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		now:         now,
		players:     make(map[string]*Player),
		redemptions: make(map[string]time.Time),
		certs:       make(map[string][]cert.Issued),
	}
}

func (m *memoryStore) CreatePending(_ context.Context, model, firmware, code string, expiresAt time.Time) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.players {
		if p.RegistrationCode == code {
			return nil, ErrCodeCollision
		}
	}
	p := &Player{
		ID:                        uuid.NewString(),
		DeviceModel:               model,
		FirmwareVersion:           firmware,
		RegistrationStatus:        StatusPending,
		RegistrationCode:          code,
		RegistrationCodeExpiresAt: &expiresAt,
		ConnectionStatus:          ConnectionOffline,
		CreatedAt:                 m.now(),
	}
	m.players[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryStore) Claim(_ context.Context, claim Claim) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owned := 0
	for _, p := range m.players {
		if p.OwnerID == claim.OwnerID {
			owned++
		}
	}
	if owned >= claim.MaxPerOwner {
		return nil, ErrDeviceLimitReached
	}

	now := m.now()
	for _, p := range m.players {
		if p.RegistrationStatus != StatusPending || p.RegistrationCode != claim.Code {
			continue
		}
		if !p.RegistrationCodeExpiresAt.After(now) {
			break
		}
		p.OwnerID = claim.OwnerID
		p.Name = claim.Name
		p.RegistrationStatus = StatusRegistered
		p.RegistrationCode = ""
		p.RegistrationCodeExpiresAt = nil
		p.RegisteredAt = &now
		m.redemptions[claim.CodeHash] = now
		m.logged = append(m.logged, "player_registered:"+p.ID)
		cp := *p
		return &cp, nil
	}

	if _, ok := m.redemptions[claim.CodeHash]; ok {
		return nil, ErrCodeAlreadyUsed
	}
	return nil, ErrInvalidCode
}

func (m *memoryStore) SetCertificate(_ context.Context, id string, issued *cert.Issued) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok || !p.Registered() {
		return ErrNotFound
	}
	applyIssued(p, issued)
	m.certs[id] = append(m.certs[id], *issued)
	return nil
}

func (m *memoryStore) LiveCertificates(_ context.Context, id string, at time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var serials []string
	for _, c := range m.certs[id] {
		if c.ExpiresAt.After(at) {
			serials = append(serials, c.Serial)
		}
	}
	return serials, nil
}

func (m *memoryStore) ListByOwner(_ context.Context, ownerID string, registeredOnly bool) ([]Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Player
	for _, p := range m.players {
		if p.OwnerID != ownerID || (registeredOnly && !p.Registered()) {
			continue
		}
		result = append(result, *p)
	}
	return result, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[id]; !ok {
		return false, nil
	}
	delete(m.players, id)
	delete(m.certs, id)
	return true, nil
}

func (m *memoryStore) UpdatePresence(_ context.Context, id string, pr Presence) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[id]
	if !ok {
		return false, nil
	}
	seen := pr.SeenAt
	p.ConnectionStatus = pr.Status
	p.LastSeenAt = &seen
	if pr.CurrentPostID != nil {
		p.CurrentPostID = pr.CurrentPostID
	}
	if pr.FirmwareVersion != nil {
		p.FirmwareVersion = *pr.FirmwareVersion
	}
	return true, nil
}

func (m *memoryStore) SetCurrentPost(_ context.Context, id string, postID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[id]; ok {
		p.CurrentPostID = &postID
	}
	return nil
}

func (m *memoryStore) PurgeExpired(_ context.Context, pendingBefore, redemptionsBefore time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending, redeemed int64
	for id, p := range m.players {
		if p.RegistrationStatus == StatusPending && p.RegistrationCodeExpiresAt.Before(pendingBefore) {
			delete(m.players, id)
			pending++
		}
	}
	for hash, at := range m.redemptions {
		if at.Before(redemptionsBefore) {
			delete(m.redemptions, hash)
			redeemed++
		}
	}
	return pending, redeemed, nil
}

type mockCA struct {
	mock.Mock
}

func (m *mockCA) Issue(playerKey string, validityDays int) (*cert.Issued, error) {
	args := m.Called(playerKey, validityDays)
	issued, _ := args.Get(0).(*cert.Issued)
	return issued, args.Error(1)
}

func (m *mockCA) Renew(playerKey string, currentExpiry time.Time, validityDays int) (*cert.Issued, error) {
	args := m.Called(playerKey, currentExpiry, validityDays)
	issued, _ := args.Get(0).(*cert.Issued)
	return issued, args.Error(1)
}

func (m *mockCA) Revoke(serial string) error {
	return m.Called(serial).Error(0)
}

func (m *mockCA) CACertPEM() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) AddPlayer(ctx context.Context, playerKey string) error {
	return m.Called(playerKey).Error(0)
}

func (m *mockAdmin) DisconnectPlayer(ctx context.Context, playerKey string) error {
	return m.Called(playerKey).Error(0)
}

func (m *mockAdmin) RemovePlayer(ctx context.Context, playerKey string) error {
	return m.Called(playerKey).Error(0)
}

type logEntry struct {
	playerID    string
	commandType string
	payload     any
}

type recordingLog struct {
	mu      sync.Mutex
	entries []logEntry
	err     error
	// onWrite lets tests observe ordering against other collaborators.
	onWrite func()
}

func (r *recordingLog) Write(_ context.Context, playerID, commandType string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onWrite != nil {
		r.onWrite()
	}
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, logEntry{playerID: playerID, commandType: commandType, payload: payload})
	return nil
}

func issuedAt(now time.Time, serial string, days int) *cert.Issued {
	return &cert.Issued{
		CertPEM:   "cert-" + serial,
		KeyPEM:    "key-" + serial,
		Serial:    serial,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Duration(days) * 24 * time.Hour),
	}
}
