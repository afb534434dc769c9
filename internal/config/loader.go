// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	normalize(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig applies environment overrides. The unprefixed DB_* and LLM_*
// names are the deployment variables the ticket dashboard already exports.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	// Server
	cfg.Server.Listen = l.envString("QUERYGATE_LISTEN", cfg.Server.Listen)
	cfg.Server.ReadTimeout = l.envDuration("QUERYGATE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = l.envDuration("QUERYGATE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration("QUERYGATE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.CORSOrigins = l.envList("QUERYGATE_CORS_ORIGINS", cfg.Server.CORSOrigins)
	cfg.Server.RateLimitRPM = l.envInt("QUERYGATE_RATE_LIMIT_RPM", cfg.Server.RateLimitRPM)
	cfg.Server.APIToken = l.envString("QUERYGATE_API_TOKEN", cfg.Server.APIToken)

	// Logging
	cfg.Log.Level = l.envString("QUERYGATE_LOG_LEVEL", cfg.Log.Level)

	// Policy
	cfg.Policy.AllowedTables = l.envList("QUERYGATE_ALLOWED_TABLES", cfg.Policy.AllowedTables)
	cfg.Policy.ForbiddenFunctions = l.envList("QUERYGATE_FORBIDDEN_FUNCTIONS", cfg.Policy.ForbiddenFunctions)
	cfg.Policy.MaxRowLimit = l.envInt("MAX_ROWS_LIMIT", cfg.Policy.MaxRowLimit)
	cfg.Policy.MaxRowLimit = l.envInt("QUERYGATE_MAX_ROWS", cfg.Policy.MaxRowLimit)
	cfg.Policy.MaxRetries = l.envInt("QUERYGATE_MAX_RETRIES", cfg.Policy.MaxRetries)
	cfg.Policy.MaxClarificationTurns = l.envInt("MAX_CLARIFICATION_TURNS", cfg.Policy.MaxClarificationTurns)
	cfg.Policy.MaxClarificationTurns = l.envInt("QUERYGATE_MAX_CLARIFICATION_TURNS", cfg.Policy.MaxClarificationTurns)

	// Database
	cfg.Database.Driver = l.envString("QUERYGATE_DB_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = l.envString("QUERYGATE_DB_DSN", cfg.Database.DSN)
	cfg.Database.Host = l.envString("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = l.envInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = l.envString("DB_USER", cfg.Database.User)
	cfg.Database.Password = l.envString("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = l.envString("DB_NAME", cfg.Database.Name)
	cfg.Database.QueryTimeout = l.envDuration("QUERY_TIMEOUT_SECONDS", cfg.Database.QueryTimeout)
	cfg.Database.QueryTimeout = l.envDuration("QUERYGATE_QUERY_TIMEOUT", cfg.Database.QueryTimeout)
	cfg.Database.MaxOpenConns = l.envInt("QUERYGATE_DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	// LLM
	cfg.LLM.Provider = l.envString("LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.APIKey = l.envString("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = l.envString("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.BaseURL = l.envString("QUERYGATE_LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Timeout = l.envDuration("QUERYGATE_PROPOSER_TIMEOUT", cfg.LLM.Timeout)
	cfg.LLM.StateExtractor = l.envString("QUERYGATE_STATE_EXTRACTOR", cfg.LLM.StateExtractor)
	cfg.LLM.BreakerThreshold = l.envInt("QUERYGATE_BREAKER_THRESHOLD", cfg.LLM.BreakerThreshold)
	cfg.LLM.BreakerReset = l.envDuration("QUERYGATE_BREAKER_RESET", cfg.LLM.BreakerReset)
	cfg.LLM.Narrate = l.envBool("QUERYGATE_NARRATE", cfg.LLM.Narrate)
	cfg.LLM.ClientBudgetRPM = l.envInt("QUERYGATE_LLM_CLIENT_BUDGET_RPM", cfg.LLM.ClientBudgetRPM)

	// Cache
	cfg.Cache.TTL = l.envDuration("QUERYGATE_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = l.envString("QUERYGATE_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = l.envString("QUERYGATE_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = l.envInt("QUERYGATE_REDIS_DB", cfg.Cache.RedisDB)

	// History
	cfg.History.Path = l.envString("QUERYGATE_HISTORY_PATH", cfg.History.Path)
	cfg.History.Retention = l.envDuration("QUERYGATE_HISTORY_RETENTION", cfg.History.Retention)

	// Telemetry
	cfg.Telemetry.Enabled = l.envBool("QUERYGATE_TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("QUERYGATE_OTLP_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("QUERYGATE_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("QUERYGATE_TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// normalize lowercases enum-like fields and policy identifiers.
func normalize(cfg *AppConfig) {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.LLM.StateExtractor = strings.ToLower(strings.TrimSpace(cfg.LLM.StateExtractor))
	cfg.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(cfg.Telemetry.Exporter))
	cfg.Policy.AllowedTables = lowerAll(cfg.Policy.AllowedTables)
	cfg.Policy.ForbiddenFunctions = lowerAll(cfg.Policy.ForbiddenFunctions)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
