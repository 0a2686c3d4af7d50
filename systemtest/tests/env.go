package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelframe/playerhub/internal/auth"
	"github.com/pixelframe/playerhub/internal/cert"
	"github.com/pixelframe/playerhub/internal/presence"
	"github.com/pixelframe/playerhub/internal/router"
	"github.com/pixelframe/playerhub/internal/views"
)

// Env is the wired server under test, with the broker replaced by a
// recording publisher.
type Env struct {
	Engine    *gin.Engine
	Pool      *pgxpool.Pool
	Router    *router.Router
	Tracker   *presence.Tracker
	Queue     *views.MemoryQueue
	Publisher *RecordingPublisher
	Authority *cert.Authority
	Auth      auth.Config
}

type Published struct {
	Topic   string
	Payload []byte
}

type RecordingPublisher struct {
	mu       sync.Mutex
	messages []Published
}

func (p *RecordingPublisher) Publish(_ context.Context, topic string, payload []byte, _ byte, _ bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Published{Topic: topic, Payload: payload})
	return true
}

// WithPrefix returns the messages whose topic starts with prefix.
func (p *RecordingPublisher) WithPrefix(prefix string) []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Published
	for _, m := range p.messages {
		if strings.HasPrefix(m.Topic, prefix) {
			out = append(out, m)
		}
	}
	return out
}

func TestHealthCheck(t *testing.T, env *Env) {
	rr := doJSON(env.Engine, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func createAccount(t *testing.T, env *Env, handle string, moderator bool) string {
	t.Helper()
	var id string
	err := env.Pool.QueryRow(context.Background(),
		"INSERT INTO accounts (handle, is_moderator) VALUES ($1, $2) RETURNING id::text",
		handle, moderator).Scan(&id)
	require.NoError(t, err)
	return id
}

func createPost(t *testing.T, env *Env, ownerID, title string, visible bool) int64 {
	t.Helper()
	var id int64
	err := env.Pool.QueryRow(context.Background(),
		"INSERT INTO posts (owner_id, title, art_url, visible) VALUES ($1::uuid, $2, $3, $4) RETURNING id",
		ownerID, title, "https://cdn.example.com/"+title+".png", visible).Scan(&id)
	require.NoError(t, err)
	return id
}

func tokenFor(t *testing.T, env *Env, accountID string) string {
	t.Helper()
	token, err := auth.GenerateToken(env.Auth, accountID, "user-"+accountID[:8], false)
	require.NoError(t, err)
	return token
}

func doJSON(engine *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var b []byte
	if body != nil {
		b, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, req)
	return rr
}

func request(t *testing.T, env *Env, playerID string, fields map[string]any) (router.Fields, error) {
	t.Helper()
	raw, err := json.Marshal(fields)
	require.NoError(t, err)
	return env.Router.Handle(context.Background(), playerID, raw)
}
