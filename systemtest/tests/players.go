package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelframe/playerhub/internal/api/http/dto"
	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/commands"
)

func provision(t *testing.T, env *Env) dto.ProvisionResponse {
	t.Helper()
	rr := doJSON(env.Engine, http.MethodPost, "/api/player/provision",
		dto.ProvisionRequest{DeviceModel: "pf-64", FirmwareVersion: "1.0.0"}, "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp dto.ProvisionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func register(t *testing.T, env *Env, token, code, name string) dto.PlayerResponse {
	t.Helper()
	rr := doJSON(env.Engine, http.MethodPost, "/api/players/register",
		dto.RegisterPlayerRequest{RegistrationCode: code, Name: name}, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp dto.PlayerResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestPlayerLifecycle(t *testing.T, env *Env) {
	owner := createAccount(t, env, "lifecycle-owner", false)
	other := createAccount(t, env, "lifecycle-other", false)
	token := tokenFor(t, env, owner)

	prov := provision(t, env)
	assert.Len(t, prov.RegistrationCode, 6)
	assert.NotEmpty(t, prov.PlayerKey)

	t.Run("credentials before registration", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodGet, "/api/player/"+prov.PlayerKey+"/credentials", nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("register requires token", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodPost, "/api/players/register",
			dto.RegisterPlayerRequest{RegistrationCode: prov.RegistrationCode, Name: "Hall"}, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	player := register(t, env, token, prov.RegistrationCode, "Hall")
	assert.Equal(t, prov.PlayerKey, player.ID)
	assert.Equal(t, "registered", player.RegistrationStatus)
	assert.NotEmpty(t, player.CertSerialNumber)

	t.Run("code is single use", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodPost, "/api/players/register",
			dto.RegisterPlayerRequest{RegistrationCode: prov.RegistrationCode, Name: "Again"}, tokenFor(t, env, other))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("unknown code", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodPost, "/api/players/register",
			dto.RegisterPlayerRequest{RegistrationCode: "ZZZZZZ", Name: "Nope"}, token)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	var certPEM string
	t.Run("credentials after registration", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodGet, "/api/player/"+prov.PlayerKey+"/credentials", nil, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.CredentialsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Contains(t, resp.CertPEM, "BEGIN CERTIFICATE")
		assert.Contains(t, resp.KeyPEM, "PRIVATE KEY")
		assert.Contains(t, resp.CACertPEM, "BEGIN CERTIFICATE")
		certPEM = resp.CertPEM

		playerKey, err := env.Authority.VerifyClientCertificate(certPEM)
		require.NoError(t, err)
		assert.Equal(t, prov.PlayerKey, playerKey)
	})

	t.Run("list is scoped to owner", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodGet, "/api/players", nil, token)
		require.Equal(t, http.StatusOK, rr.Code)
		var mine dto.ListPlayersResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &mine))
		assert.Equal(t, 1, mine.Count)

		rr = doJSON(env.Engine, http.MethodGet, "/api/players", nil, tokenFor(t, env, other))
		require.Equal(t, http.StatusOK, rr.Code)
		var theirs dto.ListPlayersResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &theirs))
		assert.Equal(t, 0, theirs.Count)
	})

	t.Run("renewal not due", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodPost, "/api/players/"+player.ID+"/renew-cert", nil, token)
		assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
	})

	t.Run("dispatch command", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodPost, "/api/players/"+player.ID+"/commands",
			dto.CommandRequest{CommandType: commands.TypeSwapNext}, token)
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

		msgs := env.Publisher.WithPrefix("playerhub/player/" + player.ID + "/command")
		require.Len(t, msgs, 1)
		var cmd commands.Command
		require.NoError(t, json.Unmarshal(msgs[0].Payload, &cmd))
		assert.Equal(t, commands.TypeSwapNext, cmd.Type)
	})

	t.Run("other owner cannot command or delete", func(t *testing.T) {
		otherToken := tokenFor(t, env, other)
		rr := doJSON(env.Engine, http.MethodPost, "/api/players/"+player.ID+"/commands",
			dto.CommandRequest{CommandType: commands.TypeSwapNext}, otherToken)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = doJSON(env.Engine, http.MethodDelete, "/api/players/"+player.ID, nil, otherToken)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("delete revokes and forgets", func(t *testing.T) {
		rr := doJSON(env.Engine, http.MethodDelete, "/api/players/"+player.ID, nil, token)
		require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

		rr = doJSON(env.Engine, http.MethodGet, "/api/player/"+prov.PlayerKey+"/credentials", nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)

		_, err := env.Authority.VerifyClientCertificate(certPEM)
		assert.ErrorIs(t, err, cert.ErrCertificateRevoked)

		var entries int
		err = env.Pool.QueryRow(t.Context(),
			"SELECT count(*) FROM command_logs WHERE command_type = 'player_removed'").Scan(&entries)
		require.NoError(t, err)
		assert.Equal(t, 1, entries)
	})
}

func TestDeviceLimit(t *testing.T, env *Env, limit int) {
	owner := createAccount(t, env, "limit-owner", false)
	token := tokenFor(t, env, owner)

	for i := 0; i < limit; i++ {
		register(t, env, token, provision(t, env).RegistrationCode, "Player")
	}

	prov := provision(t, env)
	rr := doJSON(env.Engine, http.MethodPost, "/api/players/register",
		dto.RegisterPlayerRequest{RegistrationCode: prov.RegistrationCode, Name: "One too many"}, token)
	assert.Equal(t, http.StatusConflict, rr.Code)
}
