package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithttp "github.com/powerdeck/powerdeck/internal/audit/http"
	"github.com/powerdeck/powerdeck/internal/auth"
	"github.com/powerdeck/powerdeck/internal/authz"
	cachehttp "github.com/powerdeck/powerdeck/internal/cache/http"
	"github.com/powerdeck/powerdeck/internal/powerunits"
	"github.com/powerdeck/powerdeck/internal/reports"
	"github.com/powerdeck/powerdeck/internal/shared"
	"github.com/powerdeck/powerdeck/internal/users"
	"github.com/powerdeck/powerdeck/internal/voicebot"
)

func newTestRouter(t *testing.T, client *redis.Client) http.Handler {
	t.Helper()
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	gate := authz.NewGate(
		authz.SessionProviderFunc(func(ctx context.Context) (*authz.SessionUser, error) { return nil, nil }),
		users.NewGateStore(nil),
		nil,
		slog.Default(),
	)
	guard := authz.Middleware{Gate: gate}
	return NewRouter(RouterParams{
		Logger:            slog.Default(),
		Config:            &Config{AppRequestTimeout: time.Second, RateLimitPerMinute: 1000},
		SessionManager:    sessions,
		CSRFManager:       csrf,
		Authz:             guard,
		AuthHandler:       auth.NewHandler(nil, nil, sessions, csrf),
		UsersHandler:      users.NewHandler(nil, nil),
		ReportsHandler:    reports.NewHandler(nil, nil, guard),
		PowerUnitsHandler: powerunits.NewHandler(nil, nil, guard),
		VoicebotHandler:   voicebot.NewHandler(nil, nil, guard),
		CacheHandler:      cachehttp.NewHandler(nil, nil, nil, nil, nil, nil),
		AuditHandler:      audithttp.NewHandler(nil, nil),
		Redis:             client,
	})
}

func TestReadyzServesWhileRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	router := newTestRouter(t, client)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok","cache":"ok"}`, res.Body.String())

	// A cache outage degrades to uncached serving; the instance stays ready.
	mr.Close()
	res = httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok","cache":"degraded"}`, res.Body.String())
}

func TestHealthzAlwaysOK(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	router := newTestRouter(t, client)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok"}`, res.Body.String())
}
