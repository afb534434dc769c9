// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, ":8000", cfg.Server.Listen)
	assert.Equal(t, 500, cfg.Policy.MaxRowLimit)
	assert.Equal(t, 1, cfg.Policy.MaxRetries)
	assert.Equal(t, 1, cfg.Policy.MaxClarificationTurns)
	assert.Contains(t, cfg.Policy.AllowedTables, "corporate_tickets")
	assert.Len(t, cfg.Policy.AllowedTables, 12)
	assert.Contains(t, cfg.Policy.ForbiddenFunctions, "sleep")
	assert.Contains(t, cfg.Policy.ForbiddenFunctions, "benchmark")
	assert.Equal(t, 15*time.Second, cfg.Database.QueryTimeout)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
policy:
  allowedTables: [Tickets, ticket_history]
  maxRowLimit: 200
database:
  driver: sqlite
  dsn: "file:test.db"
  queryTimeout: 5s
`)

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"tickets", "ticket_history"}, cfg.Policy.AllowedTables)
	assert.Equal(t, 200, cfg.Policy.MaxRowLimit)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	// untouched sections keep their defaults
	assert.Equal(t, 1, cfg.Policy.MaxRetries)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "config.yml", `
policy:
  maxRowLimit: 200
`)
	t.Setenv("QUERYGATE_MAX_ROWS", "50")
	t.Setenv("QUERYGATE_ALLOWED_TABLES", "tickets")
	t.Setenv("DB_NAME", "ticketing")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_MODEL", "gemini-2.0-flash")
	t.Setenv("QUERY_TIMEOUT_SECONDS", "20")
	t.Setenv("QUERYGATE_API_TOKEN", "operator-secret")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Policy.MaxRowLimit)
	assert.Equal(t, []string{"tickets"}, cfg.Policy.AllowedTables)
	assert.Equal(t, "ticketing", cfg.Database.Name)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 20*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, "operator-secret", cfg.Server.APIToken)
}

func TestLoad_PrefixedEnvWinsOverLegacyName(t *testing.T) {
	t.Setenv("MAX_ROWS_LIMIT", "300")
	t.Setenv("QUERYGATE_MAX_ROWS", "100")

	cfg, err := NewLoader("", "").Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Policy.MaxRowLimit)
}

func TestLoad_StrictUnknownField(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
policy:
  maxRowLimit: 200
  allowWrites: true
`)

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "config.yaml", "log:\n  level: info\n---\nlog:\n  level: debug\n")

	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", "")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Policy.MaxRowLimit)
}

func TestLoader_TracksConsumedKeys(t *testing.T) {
	l := NewLoader("", "")
	_, err := l.Load()
	require.NoError(t, err)

	assert.Contains(t, l.ConsumedEnvKeys, "QUERYGATE_ALLOWED_TABLES")
	assert.Contains(t, l.ConsumedEnvKeys, "LLM_API_KEY")
}
