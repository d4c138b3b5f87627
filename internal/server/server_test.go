package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bsn-realtime/config"
	"bsn-realtime/internal/handler"
	"bsn-realtime/internal/identity"
	"bsn-realtime/internal/metrics"
	bsnredis "bsn-realtime/internal/redis"
	"bsn-realtime/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv      *Server
	presence *bsnredis.PresenceStore
	healthy  bool
}

func newFixture(t *testing.T, queryLimit int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{presence: bsnredis.NewPresenceStore(client, time.Minute), healthy: true}
	verifier := identity.VerifierFunc(func(_ context.Context, token string) (identity.Identity, error) {
		if token == "good" {
			return identity.Identity{UserID: "alice", Username: "alice"}, nil
		}
		return identity.Identity{}, identity.Reject(identity.ReasonMalformed, nil)
	})

	m := metrics.New()
	m.Connections.Set(3)

	cfg := &config.Config{AppPort: "0", AppMode: TestMode, InstanceID: "gw-1"}
	f.srv = New(cfg, logger.NewNop())
	f.srv.SetupRoutes(Deps{
		Verifier: verifier,
		Presence: f.presence,
		Limiter:  bsnredis.NewRateLimiter(client, bsnredis.RateLimitConfig{QueryLimit: queryLimit, QueryWindow: time.Minute}),
		Metrics:  m,
		Checks: map[string]handler.Check{
			"broker": func(context.Context) error { return nil },
			"db": func(context.Context) error {
				if !f.healthy {
					return errors.New("connection refused")
				}
				return nil
			},
		},
	})
	return f
}

func (f *fixture) do(method, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	return w
}

func TestPing(t *testing.T) {
	f := newFixture(t, 10)
	w := f.do(http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t, 10)
	r := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, r)
	require.Equal(t, "req-123", w.Header().Get("X-Request-Id"))
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)

	w := f.do(http.MethodGet, "/health", "")
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"success":true,"data":{"status":"healthy","instance_id":"gw-1","components":{"broker":"ok","db":"ok"}}}`, w.Body.String())

	f.healthy = false
	w = f.do(http.MethodGet, "/health", "")
	req.Equal(http.StatusServiceUnavailable, w.Code)
	req.Contains(w.Body.String(), `"db":"unhealthy"`)
	req.NotContains(w.Body.String(), "connection refused")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, 10)
	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "bsn_realtime_connections 3")
}

func TestPresenceQuery(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)
	ctx := context.Background()

	req.NoError(f.presence.MarkOnline(ctx, "bob", bsnredis.Marker{InstanceID: "gw-1", ConnectionID: "c1"}))

	w := f.do(http.MethodGet, "/v1/presence?user_ids=carol,bob,%20,dave", "good")
	req.Equal(http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Users []struct {
				UserID string `json:"user_id"`
				Online bool   `json:"online"`
			} `json:"users"`
		} `json:"data"`
	}
	req.NoError(json.Unmarshal(w.Body.Bytes(), &body))
	req.True(body.Success)
	req.Len(body.Data.Users, 3)
	req.Equal("carol", body.Data.Users[0].UserID)
	req.False(body.Data.Users[0].Online)
	req.Equal("bob", body.Data.Users[1].UserID)
	req.True(body.Data.Users[1].Online)
	req.Equal("dave", body.Data.Users[2].UserID)
}

func TestPresenceQuery_Errors(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 10)

	req.Equal(http.StatusUnauthorized, f.do(http.MethodGet, "/v1/presence?user_ids=a", "").Code)
	req.Equal(http.StatusUnauthorized, f.do(http.MethodGet, "/v1/presence?user_ids=a", "bad").Code)

	w := f.do(http.MethodGet, "/v1/presence", "good")
	req.Equal(http.StatusBadRequest, w.Code)
	req.Contains(w.Body.String(), `"code":"invalid"`)

	ids := strings.TrimSuffix(strings.Repeat("u,", 101), ",")
	req.Equal(http.StatusBadRequest, f.do(http.MethodGet, "/v1/presence?user_ids="+ids, "good").Code)
}

func TestPresenceQuery_RateLimited(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, 2)

	for i := 0; i < 2; i++ {
		req.Equal(http.StatusOK, f.do(http.MethodGet, "/v1/presence?user_ids=a", "good").Code)
	}
	w := f.do(http.MethodGet, "/v1/presence?user_ids=a", "good")
	req.Equal(http.StatusTooManyRequests, w.Code)
	req.Equal("0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestShutdownRunsClosers(t *testing.T) {
	f := newFixture(t, 10)
	var order []string
	f.srv.OnShutdown(func(context.Context) error { order = append(order, "broker"); return nil })
	f.srv.OnShutdown(func(context.Context) error { order = append(order, "db"); return errors.New("boom") })

	err := f.srv.Shutdown(context.Background())
	require.EqualError(t, err, "boom")
	require.Equal(t, []string{"broker", "db"}, order)
}
