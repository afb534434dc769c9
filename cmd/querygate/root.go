// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ManuGH/querygate/internal/config"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/version"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "querygate",
		Short:        "Read-only natural-language query gateway",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadEnvFile(opts.envFile, cmd.Flags().Changed("env-file"))
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	root.AddCommand(
		newServeCmd(opts),
		newCheckCmd(opts),
		newHealthcheckCmd(),
		newVersionCmd(),
	)
	return root
}

// loadEnvFile applies a dotenv file without overriding variables already
// set. A missing default file is fine; a missing explicit one is not.
func loadEnvFile(path string, explicit bool) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

// loadConfig resolves configuration (ENV > file > defaults) and configures
// the global logger from it.
func loadConfig(opts *rootOptions) (config.AppConfig, error) {
	cfg, err := config.NewLoader(strings.TrimSpace(opts.configPath), version.Version).Load()
	if err != nil {
		return cfg, fmt.Errorf("load configuration: %w", err)
	}
	xglog.Configure(xglog.Config{
		Level:   cfg.Log.Level,
		Service: "querygate",
		Version: version.Version,
	})
	return cfg, nil
}
