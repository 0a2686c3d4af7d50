package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pixelframe/playerhub/internal/api/http/dto"
	"github.com/pixelframe/playerhub/internal/api/http/middleware"
	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/commandlog"
	"github.com/pixelframe/playerhub/internal/commands"
	"github.com/pixelframe/playerhub/internal/players"
	"github.com/pixelframe/playerhub/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testOwner = "0b9f3c1e-6d1c-4a57-9d8a-2f4f0c5a7e11"

type mockPlayers struct{ mock.Mock }

func (m *mockPlayers) Provision(ctx context.Context, model, firmware string) (*players.Provisioned, error) {
	args := m.Called(model, firmware)
	p, _ := args.Get(0).(*players.Provisioned)
	return p, args.Error(1)
}

func (m *mockPlayers) Credentials(ctx context.Context, playerID string) (*players.CredentialBundle, error) {
	args := m.Called(playerID)
	b, _ := args.Get(0).(*players.CredentialBundle)
	return b, args.Error(1)
}

func (m *mockPlayers) Register(ctx context.Context, code, ownerID, name string) (*players.Player, error) {
	args := m.Called(code, ownerID, name)
	p, _ := args.Get(0).(*players.Player)
	return p, args.Error(1)
}

func (m *mockPlayers) ListOwned(ctx context.Context, ownerID string) ([]players.Player, error) {
	args := m.Called(ownerID)
	l, _ := args.Get(0).([]players.Player)
	return l, args.Error(1)
}

func (m *mockPlayers) Remove(ctx context.Context, playerID, ownerID string) error {
	return m.Called(playerID, ownerID).Error(0)
}

func (m *mockPlayers) RenewCertificate(ctx context.Context, playerID, ownerID string) (*players.Player, error) {
	args := m.Called(playerID, ownerID)
	p, _ := args.Get(0).(*players.Player)
	return p, args.Error(1)
}

type mockCommands struct{ mock.Mock }

func (m *mockCommands) Dispatch(ctx context.Context, ownerID, playerID, commandType string, payload json.RawMessage) (*commands.Result, error) {
	args := m.Called(ownerID, playerID, commandType)
	r, _ := args.Get(0).(*commands.Result)
	return r, args.Error(1)
}

func (m *mockCommands) DispatchAll(ctx context.Context, ownerID, commandType string, payload json.RawMessage) (*commands.BatchResult, error) {
	args := m.Called(ownerID, commandType)
	r, _ := args.Get(0).(*commands.BatchResult)
	return r, args.Error(1)
}

type stubLog struct {
	entries []commandlog.Entry
}

func (s *stubLog) ListForPlayer(ctx context.Context, playerID string, limit int) ([]commandlog.Entry, error) {
	return s.entries, nil
}

type stubCA struct {
	crl string
	err error
}

func (s stubCA) CRLPEM() (string, error)    { return s.crl, s.err }
func (s stubCA) CACertPEM() (string, error) { return "ca", s.err }

func (s stubCA) VerifyClientCertificate(certPEM string) (string, error) {
	switch certPEM {
	case "good":
		return "player-1", nil
	case "revoked":
		return "", cert.ErrCertificateRevoked
	}
	return "", fmt.Errorf("%w: garbage", cert.ErrInvalidCertificate)
}

type stubIdentities map[string]bool

func (s stubIdentities) Authenticate(ctx context.Context, playerID string) (*players.Player, error) {
	if !s[playerID] {
		return nil, players.ErrAuthenticationFailed
	}
	return &players.Player{ID: playerID}, nil
}

func asOwner(c *gin.Context) {
	c.Set(middleware.AccountIDKey, testOwner)
	c.Next()
}

func setupRouter(p PlayerService, c CommandService, log CommandLogReader) *gin.Engine {
	r := gin.New()
	ph := NewPlayerHandler(p, "mqtt.example.com", 8883)
	r.POST("/api/player/provision", ph.Provision)
	r.GET("/api/player/:player_key/credentials", ph.Credentials)

	owned := r.Group("/api/players", asOwner)
	owned.POST("/register", ph.Register)
	owned.GET("", ph.List)
	owned.DELETE("/:id", ph.Delete)
	owned.POST("/:id/renew-cert", ph.RenewCertificate)

	ch := NewCommandHandler(c, log)
	owned.POST("/:id/commands", ch.Dispatch)
	owned.POST("/commands", ch.DispatchAll)
	r.GET("/api/admin/players/:id/commands", ch.History)
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProvision(t *testing.T) {
	p := &mockPlayers{}
	expires := time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)
	p.On("Provision", "pf-64", "1.2.0").Return(&players.Provisioned{
		PlayerID:         "player-1",
		RegistrationCode: "ABC234",
		ExpiresAt:        expires,
	}, nil)
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/player/provision", dto.ProvisionRequest{DeviceModel: "pf-64", FirmwareVersion: "1.2.0"})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.ProvisionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "player-1", resp.PlayerKey)
	assert.Equal(t, "ABC234", resp.RegistrationCode)
	assert.True(t, expires.Equal(resp.RegistrationCodeExpiresAt))
	assert.Equal(t, "mqtt.example.com", resp.Broker.Host)
	assert.Equal(t, 8883, resp.Broker.Port)
}

func TestProvisionMissingFields(t *testing.T) {
	p := &mockPlayers{}
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/player/provision", map[string]string{"device_model": "pf-64"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	p.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)
}

func TestCredentials(t *testing.T) {
	p := &mockPlayers{}
	p.On("Credentials", "player-1").Return(&players.CredentialBundle{
		PlayerID:   "player-1",
		CACertPEM:  "ca",
		CertPEM:    "cert",
		KeyPEM:     "key",
		BrokerHost: "mqtt.example.com",
		BrokerPort: 8883,
	}, nil)
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodGet, "/api/player/player-1/credentials", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.CredentialsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cert", resp.CertPEM)
	assert.Equal(t, "key", resp.KeyPEM)
	assert.Equal(t, "ca", resp.CACertPEM)
}

func TestCredentialsUnregistered(t *testing.T) {
	p := &mockPlayers{}
	p.On("Credentials", "player-1").Return(nil, players.ErrNotFound)
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodGet, "/api/player/player-1/credentials", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCredentialsCAUnavailable(t *testing.T) {
	p := &mockPlayers{}
	p.On("Credentials", "player-1").Return(nil, fmt.Errorf("%w: disk", cert.ErrCAUnavailable))
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodGet, "/api/player/player-1/credentials", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRegisterErrors(t *testing.T) {
	cases := map[error]int{
		players.ErrInvalidCode:        http.StatusNotFound,
		players.ErrCodeAlreadyUsed:    http.StatusConflict,
		players.ErrDeviceLimitReached: http.StatusConflict,
		players.ErrInvalidName:        http.StatusBadRequest,
	}
	for err, status := range cases {
		t.Run(err.Error(), func(t *testing.T) {
			p := &mockPlayers{}
			p.On("Register", "ABC234", testOwner, "Kitchen").Return(nil, err)
			r := setupRouter(p, &mockCommands{}, &stubLog{})

			w := doJSON(r, http.MethodPost, "/api/players/register", dto.RegisterPlayerRequest{RegistrationCode: "ABC234", Name: "Kitchen"})

			assert.Equal(t, status, w.Code)
		})
	}
}

func TestRegister(t *testing.T) {
	p := &mockPlayers{}
	p.On("Register", "ABC234", testOwner, "Kitchen").Return(&players.Player{
		ID:                 "player-1",
		OwnerID:            testOwner,
		Name:               "Kitchen",
		RegistrationStatus: players.StatusRegistered,
		ConnectionStatus:   players.ConnectionOffline,
	}, nil)
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/players/register", dto.RegisterPlayerRequest{RegistrationCode: "ABC234", Name: "Kitchen"})

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp dto.PlayerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "player-1", resp.ID)
	assert.Equal(t, "registered", resp.RegistrationStatus)
}

func TestListPlayers(t *testing.T) {
	p := &mockPlayers{}
	p.On("ListOwned", testOwner).Return([]players.Player{{ID: "a"}, {ID: "b"}}, nil)
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodGet, "/api/players", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.ListPlayersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "b", resp.Players[1].ID)
}

func TestDeletePlayer(t *testing.T) {
	p := &mockPlayers{}
	p.On("Remove", "player-1", testOwner).Return(nil)
	p.On("Remove", "player-2", testOwner).Return(players.ErrNotFound)
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	assert.Equal(t, http.StatusNoContent, doJSON(r, http.MethodDelete, "/api/players/player-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodDelete, "/api/players/player-2", nil).Code)
}

func TestRenewCertificateNotDue(t *testing.T) {
	p := &mockPlayers{}
	p.On("RenewCertificate", "player-1", testOwner).Return(nil, cert.ErrRenewalNotDue)
	r := setupRouter(p, &mockCommands{}, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/players/player-1/renew-cert", nil)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestDispatchCommand(t *testing.T) {
	c := &mockCommands{}
	c.On("Dispatch", testOwner, "player-1", commands.TypeSwapNext).
		Return(&commands.Result{CommandID: "cmd-1", PlayerID: "player-1", Published: true}, nil)
	r := setupRouter(&mockPlayers{}, c, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/players/player-1/commands", dto.CommandRequest{CommandType: commands.TypeSwapNext})

	assert.Equal(t, http.StatusAccepted, w.Code)
	var res commands.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "cmd-1", res.CommandID)
	assert.True(t, res.Published)
}

func TestDispatchCommandRateLimited(t *testing.T) {
	c := &mockCommands{}
	c.On("Dispatch", testOwner, "player-1", commands.TypeSwapNext).
		Return(nil, &ratelimit.Error{Scope: ratelimit.CommandPerAccount.Name, RetryAfter: 1500 * time.Millisecond})
	r := setupRouter(&mockPlayers{}, c, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/players/player-1/commands", dto.CommandRequest{CommandType: commands.TypeSwapNext})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
}

func TestDispatchCommandUnknownType(t *testing.T) {
	c := &mockCommands{}
	c.On("Dispatch", testOwner, "player-1", "reboot").Return(nil, commands.ErrUnknownCommand)
	r := setupRouter(&mockPlayers{}, c, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/players/player-1/commands", dto.CommandRequest{CommandType: "reboot"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDispatchAllNoPlayers(t *testing.T) {
	c := &mockCommands{}
	c.On("DispatchAll", testOwner, commands.TypeSwapBack).Return(nil, commands.ErrNoPlayers)
	r := setupRouter(&mockPlayers{}, c, &stubLog{})

	w := doJSON(r, http.MethodPost, "/api/players/commands", dto.CommandRequest{CommandType: commands.TypeSwapBack})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommandHistory(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log := &stubLog{entries: []commandlog.Entry{
		{ID: 7, PlayerID: "player-1", CommandType: commands.TypeSwapNext, Payload: json.RawMessage(`{}`), CreatedAt: created},
	}}
	r := setupRouter(&mockPlayers{}, &mockCommands{}, log)

	w := doJSON(r, http.MethodGet, "/api/admin/players/player-1/commands", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp dto.CommandLogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, int64(7), resp.Entries[0].ID)
}

func TestCRL(t *testing.T) {
	r := gin.New()
	h := NewAdminHandler(stubCA{crl: "-----BEGIN X509 CRL-----"}, stubIdentities{})
	r.GET("/crl", h.CRL)

	w := doJSON(r, http.MethodGet, "/crl", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "X509 CRL")
}

func TestVerifyCertificate(t *testing.T) {
	r := gin.New()
	h := NewAdminHandler(stubCA{}, stubIdentities{"player-1": true})
	r.POST("/verify", h.VerifyCertificate)

	cases := map[string]int{
		"good":    http.StatusOK,
		"revoked": http.StatusForbidden,
		"junk":    http.StatusForbidden,
	}
	for body, status := range cases {
		req, _ := http.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, status, w.Code, body)
	}
}

func TestVerifyCertificateRemovedPlayer(t *testing.T) {
	r := gin.New()
	h := NewAdminHandler(stubCA{}, stubIdentities{})
	r.POST("/verify", h.VerifyCertificate)

	req, _ := http.NewRequest(http.MethodPost, "/verify", bytes.NewBufferString("good"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "player_key")
}
