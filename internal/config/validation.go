// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/querygate/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("Server.Listen", cfg.Server.Listen)
	v.NonNegative("Server.RateLimitRPM", cfg.Server.RateLimitRPM)
	v.Check("Server.MaxBodyBytes", cfg.Server.MaxBodyBytes > 0, cfg.Server.MaxBodyBytes, "must be positive")

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("Log.Level", err.Error(), cfg.Log.Level)
	}

	// Policy
	v.Identifiers("Policy.AllowedTables", cfg.Policy.AllowedTables)
	v.Identifiers("Policy.ForbiddenFunctions", cfg.Policy.ForbiddenFunctions)
	validate.Between(v, "Policy.MaxRowLimit", cfg.Policy.MaxRowLimit, 1, 100000)
	validate.Between(v, "Policy.MaxRetries", cfg.Policy.MaxRetries, 0, 5)
	v.NonNegative("Policy.MaxClarificationTurns", cfg.Policy.MaxClarificationTurns)

	// Database
	v.OneOf("Database.Driver", cfg.Database.Driver, []string{"mysql", "sqlite"})
	if cfg.Database.Driver == "sqlite" {
		v.NotEmpty("Database.DSN", cfg.Database.DSN)
	}
	if cfg.Database.Driver == "mysql" && cfg.Database.DSN == "" {
		v.Port("Database.Port", cfg.Database.Port)
	}
	validate.Between(v, "Database.QueryTimeout", cfg.Database.QueryTimeout, time.Second, 10*time.Minute)
	v.Positive("Database.MaxOpenConns", cfg.Database.MaxOpenConns)

	// LLM
	v.OneOf("LLM.Provider", cfg.LLM.Provider, []string{"openai", "gemini"})
	v.NotEmpty("LLM.Model", cfg.LLM.Model)
	if strings.TrimSpace(cfg.LLM.BaseURL) != "" {
		v.URL("LLM.BaseURL", cfg.LLM.BaseURL, []string{"http", "https"})
	}
	validate.Between(v, "LLM.Timeout", cfg.LLM.Timeout, time.Second, 5*time.Minute)
	v.OneOf("LLM.StateExtractor", cfg.LLM.StateExtractor, []string{"llm", "keyword"})
	v.Positive("LLM.BreakerThreshold", cfg.LLM.BreakerThreshold)
	v.NonNegative("LLM.ClientBudgetRPM", cfg.LLM.ClientBudgetRPM)

	// Cache
	v.Check("Cache.TTL", cfg.Cache.TTL >= 0, cfg.Cache.TTL, "cannot be negative")
	validate.Between(v, "Cache.RedisDB", cfg.Cache.RedisDB, 0, 15)

	// Telemetry
	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		validate.Between(v, "Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
