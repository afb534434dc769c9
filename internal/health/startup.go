// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/querygate/internal/config"
	"github.com/ManuGH/querygate/internal/guard"
	"github.com/ManuGH/querygate/internal/log"
)

// PerformStartupChecks validates the environment before the server starts.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if _, err := guard.NewPolicy(cfg.Policy.AllowedTables, cfg.Policy.ForbiddenFunctions, cfg.Policy.MaxRowLimit); err != nil {
		return fmt.Errorf("validation policy: %w", err)
	}
	logger.Info().
		Int("allowed_tables", len(cfg.Policy.AllowedTables)).
		Int("max_rows", cfg.Policy.MaxRowLimit).
		Msg("✓ Validation policy is valid")

	if cfg.Database.Driver == "sqlite" {
		if err := checkFileReadable(sqlitePath(cfg.Database.DSN)); err != nil {
			return fmt.Errorf("sqlite database: %w", err)
		}
		logger.Info().Msg("✓ SQLite database is readable")
	}

	if cfg.History.Path != "" {
		if err := checkWritableDir(logger, filepath.Dir(cfg.History.Path)); err != nil {
			return fmt.Errorf("history directory check failed: %w", err)
		}
	} else {
		logger.Warn().Msg("query history disabled; audit events go to the log only")
	}

	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		logger.Warn().
			Str("provider", cfg.LLM.Provider).
			Msg("LLM API key not configured; proposer calls will fail until it is set")
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("✓ History directory is writable")
	return nil
}

// sqlitePath strips a file: scheme and query options from a DSN.
func sqlitePath(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "file:")
	path, _, _ := strings.Cut(dsn, "?")
	return path
}

func checkFileReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config; verifying readability is expected
	if err != nil {
		return err
	}
	return f.Close()
}
