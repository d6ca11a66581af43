package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Server holds the HTTP server dependencies and the top-level router.
// Domain handlers are mounted onto AdminOrgs/SelfOrgs/Auth by the caller
// after construction.
type Server struct {
	Router    *chi.Mux
	AdminOrgs chi.Router // /admin/orgs/{org}, identity-aware
	SelfOrgs  chi.Router // /config/me, identity-aware
	Auth      chi.Router // /auth, identity-aware
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// Config holds the pieces of application config the server itself needs.
type Config struct {
	CORSAllowedOrigins []string
}

// IdentityMiddleware is the signature of identity.Middleware, accepted here
// rather than imported directly so this package doesn't depend on identity
// (which itself depends on httpserver for response helpers).
type IdentityMiddleware func(http.Handler) http.Handler

// NewServer builds the router, wires health/metrics endpoints, and mounts
// the three identity-aware route trees: /admin/orgs/{org}, /config/me and
// /auth. Domain handlers are mounted onto AdminOrgs/SelfOrgs/Auth by the
// caller.
func NewServer(cfg Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry, identityMW IdentityMiddleware) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(CorrelationID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Correlation-Id"},
		ExposedHeaders:   []string{"X-Correlation-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))
	s.Router.Get("/api/v1/status", s.handleStatus)

	s.Router.Group(func(g chi.Router) {
		g.Use(identityMW)

		g.Route("/admin/orgs/{org}", func(r chi.Router) {
			s.AdminOrgs = r
		})
		g.Route("/config/me", func(r chi.Router) {
			s.SelfOrgs = r
		})
		g.Route("/auth", func(r chi.Router) {
			s.Auth = r
		})
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Database      string `json:"database"`
	Redis         string `json:"redis"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{UptimeSeconds: int64(time.Since(s.startedAt).Seconds())}

	if err := s.DB.Ping(ctx); err != nil {
		resp.Database = "error"
	} else {
		resp.Database = "ok"
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		resp.Redis = "error"
	} else {
		resp.Redis = "ok"
	}

	if resp.Database == "ok" && resp.Redis == "ok" {
		resp.Status = "ok"
	} else {
		resp.Status = "degraded"
	}

	Respond(w, http.StatusOK, resp)
}
