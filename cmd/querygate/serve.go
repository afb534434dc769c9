// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/querygate/internal/config"
	"github.com/ManuGH/querygate/internal/daemon"
	"github.com/ManuGH/querygate/internal/health"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.AppConfig) error {
	logger := xglog.WithComponent("daemon")
	logger.Info().
		Str("event", "config.loaded").
		Str("version", version.Version).
		Str("listen", cfg.Server.Listen).
		Str("driver", cfg.Database.Driver).
		Str(xglog.FieldProvider, cfg.LLM.Provider).
		Msg("starting querygate")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
		return err
	}

	rt, err := daemon.Bootstrap(ctx, cfg, daemon.Options{
		Version:     version.Version,
		Environment: config.ParseString("QUERYGATE_ENVIRONMENT", "production"),
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return rt.App().Run(ctx)
}
