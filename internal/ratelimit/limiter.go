// SPDX-License-Identifier: MIT

// Package ratelimit budgets proposer-bound requests per client. Each
// accepted request can cost several LLM calls, so this budget is tighter
// than the general HTTP rate limit.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var budgetExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "querygate",
		Name:      "proposer_budget_exceeded_total",
		Help:      "Requests refused because a proposer budget was spent",
	},
	[]string{"limit_type"},
)

// Config holds rate limiting configuration.
type Config struct {
	// Global limits across all clients.
	GlobalRate  rate.Limit
	GlobalBurst int

	// Per-client limits.
	PerClientRate  rate.Limit
	PerClientBurst int

	// IdleTTL is how long an unused client limiter is kept.
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return FromRPM(30)
}

// FromRPM builds a config allowing rpm requests per client per minute with a
// burst of a tenth of that (at least one). The global budget is fifty clients'
// worth.
func FromRPM(rpm int) Config {
	if rpm <= 0 {
		return Config{GlobalRate: rate.Inf, PerClientRate: rate.Inf, IdleTTL: 10 * time.Minute}
	}
	burst := max(rpm/10, 1)
	perClient := rate.Limit(float64(rpm) / 60)
	return Config{
		GlobalRate:     perClient * 50,
		GlobalBurst:    burst * 50,
		PerClientRate:  perClient,
		PerClientBurst: burst,
		IdleTTL:        10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks the global and per-client budgets.
type Limiter struct {
	config Config

	global  *rate.Limiter
	clients map[string]*clientLimiter
	mu      sync.Mutex

	lastCleanup time.Time
	now         func() time.Time
}

// New creates a limiter with the given config.
func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		clients:     make(map[string]*clientLimiter),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// Allow reports whether client may spend one unit of budget now.
func (l *Limiter) Allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.config.PerClientRate, l.config.PerClientBurst)}
		l.clients[client] = cl
	}
	cl.lastSeen = now
	l.maybeCleanup(now)

	// Check the client first so one noisy client does not drain the global budget.
	if !cl.limiter.AllowN(now, 1) {
		budgetExceeded.WithLabelValues("per_client").Inc()
		return false
	}
	if !l.global.AllowN(now, 1) {
		budgetExceeded.WithLabelValues("global").Inc()
		return false
	}
	return true
}

// Clients returns the number of tracked client limiters.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// maybeCleanup drops limiters idle for longer than IdleTTL. Callers hold mu.
func (l *Limiter) maybeCleanup(now time.Time) {
	if l.config.IdleTTL <= 0 || now.Sub(l.lastCleanup) < l.config.IdleTTL {
		return
	}
	for client, cl := range l.clients {
		if now.Sub(cl.lastSeen) > l.config.IdleTTL {
			delete(l.clients, client)
		}
	}
	l.lastCleanup = now
}

// Middleware refuses requests whose client has spent its budget with 429.
// onReject, if set, is called for every refused request.
func Middleware(l *Limiter, onReject func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				if onReject != nil {
					onReject(r)
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"budget_exceeded","detail":"Too many questions in a short time. Please wait a moment."}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client address, preferring the first
// X-Forwarded-For entry, then X-Real-IP, then the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
