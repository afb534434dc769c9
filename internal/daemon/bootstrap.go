// SPDX-License-Identifier: MIT

// Package daemon wires the gateway together and owns its lifecycle.
package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/querygate/internal/api"
	"github.com/ManuGH/querygate/internal/audit"
	"github.com/ManuGH/querygate/internal/cache"
	"github.com/ManuGH/querygate/internal/config"
	"github.com/ManuGH/querygate/internal/conversation"
	"github.com/ManuGH/querygate/internal/executor"
	"github.com/ManuGH/querygate/internal/gateway"
	"github.com/ManuGH/querygate/internal/guard"
	"github.com/ManuGH/querygate/internal/health"
	"github.com/ManuGH/querygate/internal/intake"
	"github.com/ManuGH/querygate/internal/llm"
	"github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/present"
	"github.com/ManuGH/querygate/internal/proposer"
	"github.com/ManuGH/querygate/internal/ratelimit"
	"github.com/ManuGH/querygate/internal/resilience"
	"github.com/ManuGH/querygate/internal/telemetry"
)

const memoryCacheSweep = time.Minute

// Runtime is the fully wired process: components plus the manager that
// serves them and closes them on shutdown.
type Runtime struct {
	Manager  Manager
	Server   *api.Server
	Health   *health.Manager
	Guard    *guard.Guard
	Breaker  *resilience.CircuitBreaker
	Executor *executor.DB
	Trail    *audit.Trail
}

// Options tune Bootstrap. Zero values select production behaviour.
type Options struct {
	Version     string
	Environment string
	// Completer overrides the configured LLM backend.
	Completer llm.Completer
}

// Bootstrap builds every component from cfg. Resources opened here are
// registered as shutdown hooks in opening order, so they close in reverse.
// On error everything opened so far is closed before returning.
func Bootstrap(ctx context.Context, cfg config.AppConfig, opts Options) (_ *Runtime, err error) {
	logger := log.WithComponent("bootstrap")

	var hooks []namedHook
	defer func() {
		if err == nil {
			return
		}
		for i := len(hooks) - 1; i >= 0; i-- {
			if cerr := hooks[i].hook(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn().Err(cerr).Str("hook", hooks[i].name).Msg("cleanup after failed bootstrap")
			}
		}
	}()
	onShutdown := func(name string, hook ShutdownHook) {
		hooks = append(hooks, namedHook{name: name, hook: hook})
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.FromAppConfig(cfg.Telemetry, opts.Version, opts.Environment))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	onShutdown("telemetry", tp.Shutdown)

	policy, err := guard.NewPolicy(cfg.Policy.AllowedTables, cfg.Policy.ForbiddenFunctions, cfg.Policy.MaxRowLimit)
	if err != nil {
		return nil, fmt.Errorf("validation policy: %w", err)
	}
	g := guard.New(policy)

	db, err := executor.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	onShutdown("executor", func(context.Context) error { return db.Close() })

	trail, history, err := openTrail(ctx, cfg.History)
	if err != nil {
		return nil, err
	}
	if history != nil {
		onShutdown("history", func(context.Context) error { return history.Close() })
	}

	completer := opts.Completer
	if completer == nil {
		completer = newCompleter(ctx, cfg.LLM, logger)
	}

	proposalCache, err := openCache(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	onShutdown("cache", func(context.Context) error { return proposalCache.Close() })

	breaker := resilience.NewCircuitBreaker("proposer", cfg.LLM.BreakerThreshold, cfg.LLM.BreakerReset)
	var p proposer.Proposer = proposer.NewLLMProposer(completer, proposer.NewPromptBuilder(cfg.Policy.AllowedTables, cfg.Policy.MaxRowLimit))
	p = proposer.WithBreaker(p, breaker)
	p = proposer.NewCached(p, proposalCache, cfg.Cache.TTL,
		proposer.WithSharedTimeout(cfg.LLM.Timeout),
		proposer.WithStorable(func(o proposer.Output) bool {
			return o.Kind != proposer.KindSQL || g.Validate(o.Text).Accepted()
		}))

	var extractor conversation.Extractor = conversation.KeywordExtractor{}
	if cfg.LLM.StateExtractor == "llm" {
		extractor = conversation.NewLLMExtractor(completer)
	}

	deps := gateway.Deps{
		Intake:                intake.New(cfg.Policy.MaxClarificationTurns),
		Extractor:             extractor,
		Controller:            gateway.NewController(p, g, cfg.Policy.MaxRetries),
		Executor:              db,
		Trail:                 trail,
		MaxClarificationTurns: cfg.Policy.MaxClarificationTurns,
	}
	if cfg.LLM.Narrate {
		deps.Narrator = present.NewNarrator(completer)
	}
	gw := gateway.New(deps)

	hm := health.NewManager(opts.Version)
	hm.RegisterChecker(health.NewPingChecker("database", db.Ping))
	hm.RegisterChecker(health.NewBreakerChecker("proposer", breaker))
	if history != nil {
		hm.RegisterChecker(health.Informational(health.NewPingChecker("history", history.Ping)))
	}
	if rc, ok := proposalCache.(*cache.RedisCache); ok {
		hm.RegisterChecker(health.Informational(health.NewPingChecker("cache", rc.HealthCheck)))
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = telemetry.ServiceName
	}
	srv := api.New(api.Config{
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.CORSOrigins,
		RateLimitRPM:   cfg.Server.RateLimitRPM,
		APIToken:       cfg.Server.APIToken,
		TracingService: tracing,
	}, api.Deps{
		Gateway:   gw,
		Validator: g,
		History:   trail,
		Health:    hm,
		Budget:    ratelimit.New(ratelimit.FromRPM(cfg.LLM.ClientBudgetRPM)),
		Audit:     trail.Logger(),
	})

	mgr, err := NewManager(cfg.Server, Deps{Logger: log.WithComponent("daemon"), APIHandler: srv.Handler()})
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		mgr.RegisterShutdownHook(h.name, h.hook)
	}

	logger.Info().
		Str("driver", db.Driver()).
		Str(log.FieldProvider, completer.Name()).
		Int("allowed_tables", len(cfg.Policy.AllowedTables)).
		Int("max_retries", cfg.Policy.MaxRetries).
		Bool("history", history != nil).
		Msg("gateway wired")
	if cfg.Server.APIToken == "" {
		logger.Warn().Msg("QUERYGATE_API_TOKEN is unset, operator routes will answer 401")
	}

	return &Runtime{
		Manager:  mgr,
		Server:   srv,
		Health:   hm,
		Guard:    g,
		Breaker:  breaker,
		Executor: db,
		Trail:    trail,
	}, nil
}

// App returns the runnable application for r.
func (r *Runtime) App() *App {
	return NewApp(log.WithComponent("daemon"), r.Manager, r.Breaker)
}

func openTrail(ctx context.Context, cfg config.HistoryConfig) (*audit.Trail, *audit.SqliteHistory, error) {
	if cfg.Path == "" {
		return audit.NewTrail(nil, nil), nil, nil
	}
	h, err := audit.NewSqliteHistory(ctx, cfg.Path, cfg.Retention)
	if err != nil {
		return nil, nil, fmt.Errorf("history: %w", err)
	}
	return audit.NewTrail(nil, h), h, nil
}

// openCache prefers Redis when configured. A zero TTL still gets a cache so
// identical in-flight proposals are coalesced.
func openCache(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(memoryCacheSweep), nil
	}
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("proposal cache: %w", err)
	}
	return rc, nil
}

// newCompleter builds the configured LLM backend. A missing key is not fatal:
// the process serves validation, history and health checks while every proposer
// call fails as unavailable.
func newCompleter(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) llm.Completer {
	c, err := llm.New(ctx, cfg)
	if err == nil {
		return c
	}
	logger.Warn().Err(err).Str(log.FieldProvider, cfg.Provider).Msg("LLM backend unavailable; proposer calls will fail")
	return llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "", err
	})
}
