// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/querygate/internal/metrics"
	"github.com/ManuGH/querygate/internal/resilience"
)

const breakerReportInterval = 15 * time.Second

// App owns the long-lived runtime: the server manager plus the background
// loops that live exactly as long as it does.
type App struct {
	logger  zerolog.Logger
	manager Manager
	breaker *resilience.CircuitBreaker
}

// NewApp creates a new App orchestrator. breaker may be nil.
func NewApp(logger zerolog.Logger, manager Manager, breaker *resilience.CircuitBreaker) *App {
	return &App{logger: logger, manager: manager, breaker: breaker}
}

// Run starts the server and background loops and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	// The server's exit ends the background loops.
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(serverCtx)

	if a.breaker != nil {
		g.Go(func() error {
			a.reportBreaker(gctx)
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		err := a.manager.Start(ctx)
		if err != nil {
			a.logger.Error().Err(err).Str("event", "daemon.stopped").Msg("server stopped with error")
		}
		return err
	})

	return g.Wait()
}

// reportBreaker publishes the breaker state on a timer. Open turns half-open
// by time alone, with no call through the breaker to report it.
func (a *App) reportBreaker(ctx context.Context) {
	t := time.NewTicker(breakerReportInterval)
	defer t.Stop()
	for {
		metrics.SetCircuitBreakerState(a.breaker.Name(), string(a.breaker.State()))
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
