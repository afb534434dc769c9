// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the gateway over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/querygate/internal/api/middleware"
	"github.com/ManuGH/querygate/internal/audit"
	"github.com/ManuGH/querygate/internal/auth"
	"github.com/ManuGH/querygate/internal/gateway"
	"github.com/ManuGH/querygate/internal/guard"
	"github.com/ManuGH/querygate/internal/health"
	"github.com/ManuGH/querygate/internal/ratelimit"
)

const defaultMaxBodyBytes = 64 << 10

// QueryHandler runs one conversational turn.
type QueryHandler interface {
	Handle(ctx context.Context, req gateway.Request) gateway.Result
}

// Validator checks a statement against the read-only policy.
type Validator interface {
	Validate(text string) guard.Verdict
}

// HistoryReader returns recent audit records.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// Config holds transport settings.
type Config struct {
	MaxBodyBytes   int64
	AllowedOrigins []string
	RateLimitRPM   int
	// TracingService names HTTP spans; empty disables HTTP tracing.
	TracingService string
	// APIToken guards operator routes. Empty locks them.
	APIToken string
}

// Deps are the collaborators behind the routes. Health, History, Budget and
// Audit are optional.
type Deps struct {
	Gateway   QueryHandler
	Validator Validator
	History   HistoryReader
	Health    *health.Manager
	Budget    *ratelimit.Limiter
	Audit     *audit.Logger
}

// Server is the HTTP front of the gateway.
type Server struct {
	cfg     Config
	deps    Deps
	handler http.Handler
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger()
	}
	s := &Server{cfg: cfg, deps: deps}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:     true,
		AllowedOrigins: s.cfg.AllowedOrigins,

		EnableOriginCheck: true,

		EnableSecurityHeaders: true,
		CSP:                   middleware.DefaultCSP,

		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,

		RateLimitRPM: s.cfg.RateLimitRPM,
		OnRateLimit:  s.onRateLimit,
	})

	s.registerHealthRoutes(r)
	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.proposerBudget()).Post("/query", s.handleQuery)
		r.Post("/validate", s.handleValidate)
		r.With(auth.RequireToken(s.cfg.APIToken, s.onAuthFailure)).Get("/history", s.handleHistory)
	})
	return r
}

func (s *Server) registerHealthRoutes(r chi.Router) {
	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())
}

// proposerBudget limits how often one client can reach the proposer.
func (s *Server) proposerBudget() func(http.Handler) http.Handler {
	if s.deps.Budget == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(s.deps.Budget, s.onRateLimit)
}

func (s *Server) onRateLimit(r *http.Request) {
	s.deps.Audit.RateLimitExceeded(ratelimit.ClientIP(r), r.URL.Path)
}

func (s *Server) onAuthFailure(w http.ResponseWriter, r *http.Request) {
	reason := "invalid token"
	switch {
	case s.cfg.APIToken == "":
		reason = "operator token not configured"
	case auth.ExtractToken(r) == "":
		reason = "missing token"
	}
	s.deps.Audit.AuthFailure(ratelimit.ClientIP(r), r.URL.Path, reason)
	w.Header().Set("WWW-Authenticate", `Bearer realm="querygate"`)
	writeError(w, http.StatusUnauthorized, "unauthorized", "a valid operator token is required")
}
