package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/edvin/authgate/internal/api/handler"
	mw "github.com/edvin/authgate/internal/api/middleware"
	"github.com/edvin/authgate/internal/audit"
	"github.com/edvin/authgate/internal/config"
	"github.com/edvin/authgate/internal/oidc"
	"github.com/edvin/authgate/internal/session"
)

type Server struct {
	router  chi.Router
	logger  zerolog.Logger
	manager *session.Manager
	client  *oidc.Client
	auditor *audit.Logger
	cfg     *config.Config
	// pool is nil when running with the in-memory session store.
	pool *pgxpool.Pool
}

func NewServer(logger zerolog.Logger, client *oidc.Client, manager *session.Manager, auditor *audit.Logger, pool *pgxpool.Pool, cfg *config.Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		logger:  logger,
		manager: manager,
		client:  client,
		auditor: auditor,
		cfg:     cfg,
		pool:    pool,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(chimw.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	home := handler.NewHome(s.manager)
	s.router.Get("/", home.Get)

	auth := handler.NewAuth(s.client, s.manager, s.auditor, s.cfg.ProviderLogoutURL())
	s.router.Get("/login", auth.Login)
	s.router.Get("/callback", auth.Callback)
	s.router.Post("/callback", auth.Callback)
	s.router.Get("/logout", auth.Logout)

	// Gated routes. /protected is the representative resource; anything
	// mounted in this group inherits the redirect-to-login behavior.
	s.router.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth(s.manager, s.auditor))

		protected := handler.NewProtected()
		r.Get("/protected", protected.Get)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			checks["db"] = err.Error()
			healthy = false
		} else {
			checks["db"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
