package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	audithttp "github.com/powerdeck/powerdeck/internal/audit/http"
	"github.com/powerdeck/powerdeck/internal/auth"
	"github.com/powerdeck/powerdeck/internal/authz"
	cachehttp "github.com/powerdeck/powerdeck/internal/cache/http"
	"github.com/powerdeck/powerdeck/internal/observability"
	"github.com/powerdeck/powerdeck/internal/powerunits"
	"github.com/powerdeck/powerdeck/internal/reports"
	"github.com/powerdeck/powerdeck/internal/shared"
	"github.com/powerdeck/powerdeck/internal/users"
	"github.com/powerdeck/powerdeck/internal/voicebot"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Authz          authz.Middleware

	AuthHandler       *auth.Handler
	UsersHandler      *users.Handler
	ReportsHandler    *reports.Handler
	PowerUnitsHandler *powerunits.Handler
	VoicebotHandler   *voicebot.Handler
	CacheHandler      *cachehttp.Handler
	AuditHandler      *audithttp.Handler

	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router for the dashboard API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	// Readiness gates on Postgres only. A Redis outage degrades to
	// uncached serving, so it must not pull instances from the balancer.
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unavailable","postgres":"down"}`))
				return
			}
		}
		cacheStatus := "ok"
		if params.Redis != nil {
			if err := params.Redis.Ping(req.Context()).Err(); err != nil {
				cacheStatus = "degraded"
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","cache":"` + cacheStatus + `"}`))
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.Authz.Authenticated())
		r.Get("/api/me", auth.HandleMe)
	})

	r.Route("/api/reports", params.ReportsHandler.MountRoutes)
	r.Route("/api/power-units", params.PowerUnitsHandler.MountRoutes)
	r.Route("/api/voicebot-calls", params.VoicebotHandler.MountRoutes)

	r.Route("/api/users", func(r chi.Router) {
		r.Use(params.Authz.AdminOnly())
		params.UsersHandler.MountRoutes(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.Authz.AdminOnly())
		r.Mount("/cache", params.CacheHandler.Routes())
		r.Mount("/audit", params.AuditHandler.Routes())
	})

	return r
}
