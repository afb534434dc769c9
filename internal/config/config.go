// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads querygate configuration with precedence ENV > YAML file > defaults.
//
// The policy section feeds the SQL guard and the retry controller. It is read
// once at startup; there is deliberately no reload path, so a running process
// always validates against the same policy.
package config

import "time"

// AppConfig is the fully resolved configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Policy    PolicyConfig    `yaml:"policy"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	RateLimitRPM    int           `yaml:"rateLimitRPM"` // 0 disables
	// APIToken guards operator routes such as /api/v1/history.
	APIToken string `yaml:"apiToken"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// PolicyConfig is the validation and retry policy.
type PolicyConfig struct {
	AllowedTables         []string `yaml:"allowedTables"`
	ForbiddenFunctions    []string `yaml:"forbiddenFunctions"`
	MaxRowLimit           int      `yaml:"maxRowLimit"`
	MaxRetries            int      `yaml:"maxRetries"`
	MaxClarificationTurns int      `yaml:"maxClarificationTurns"`
}

// DatabaseConfig configures the executor connection.
type DatabaseConfig struct {
	Driver       string        `yaml:"driver"` // mysql | sqlite
	DSN          string        `yaml:"dsn"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
	MaxOpenConns int           `yaml:"maxOpenConns"`
}

// LLMConfig configures the proposer and state extractor backends.
type LLMConfig struct {
	Provider         string        `yaml:"provider"` // openai | gemini
	APIKey           string        `yaml:"apiKey"`
	Model            string        `yaml:"model"`
	BaseURL          string        `yaml:"baseUrl"`
	Timeout          time.Duration `yaml:"timeout"`
	StateExtractor   string        `yaml:"stateExtractor"` // llm | keyword
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
	Narrate          bool          `yaml:"narrate"`
	ClientBudgetRPM  int           `yaml:"clientBudgetRPM"` // per client; 0 disables
}

// CacheConfig configures the proposal cache. An empty RedisAddr selects the in-memory cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"` // 0 disables caching
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
}

// HistoryConfig configures the SQLite query history. An empty Path disables it.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}
