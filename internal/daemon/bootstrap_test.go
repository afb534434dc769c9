// SPDX-License-Identifier: MIT

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/querygate/internal/config"
	"github.com/ManuGH/querygate/internal/llm"
	"github.com/ManuGH/querygate/internal/persistence/sqlite"
	"github.com/ManuGH/querygate/internal/proposer"
)

func seedTickets(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickets.sqlite")
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	for _, s := range []string{
		`CREATE TABLE corporate_tickets (ID INTEGER PRIMARY KEY, Ticket_Id TEXT, Status TEXT)`,
		`INSERT INTO corporate_tickets (Ticket_Id, Status) VALUES ('TKT-001', 'Open'), ('TKT-002', 'Closed'), ('TKT-003', 'Open')`,
		`PRAGMA journal_mode=DELETE`,
	} {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return path
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.Listen = reserveListenAddr(t)
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Database = config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          seedTickets(t),
		QueryTimeout: 5 * time.Second,
	}
	cfg.History.Path = filepath.Join(t.TempDir(), "history.sqlite")
	cfg.LLM.StateExtractor = "keyword"
	cfg.LLM.Narrate = false
	cfg.Cache.RedisAddr = ""
	cfg.Telemetry.Enabled = false
	cfg.Server.APIToken = "operator-token"
	return cfg
}

func postJSON(t *testing.T, url string, body any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBootstrap_ServesEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	var calls atomic.Int32
	completer := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		calls.Add(1)
		return "```sql\nSELECT COUNT(*) AS total_tickets FROM corporate_tickets\n```", nil
	})

	rt, err := Bootstrap(context.Background(), cfg, Options{Version: "test", Completer: completer})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- rt.App().Run(ctx) }()
	require.NoError(t, waitForListen(cfg.Server.Listen, 2*time.Second))
	base := "http://" + cfg.Server.Listen

	out := postJSON(t, base+"/api/v1/query", map[string]any{"query": "How many tickets are there in total?"})
	assert.Equal(t, "success", out["status"])
	kpis, ok := out["kpis"].([]any)
	require.True(t, ok)
	require.Len(t, kpis, 1)
	assert.EqualValues(t, 3, kpis[0].(map[string]any)["value"])
	assert.EqualValues(t, 1, calls.Load())

	// Same turn again is answered from the proposal cache.
	postJSON(t, base+"/api/v1/query", map[string]any{"query": "How many tickets are there in total?"})
	assert.EqualValues(t, 1, calls.Load())

	verdict := postJSON(t, base+"/api/v1/validate", map[string]any{"sql": "DROP TABLE corporate_tickets"})
	assert.Equal(t, false, verdict["accepted"])
	assert.Equal(t, "not_read_only", verdict["code"])

	resp, err := http.Get(base + "/api/v1/history?limit=10")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, base+"/api/v1/history?limit=10", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+cfg.Server.APIToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist struct {
		Records []map[string]any `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hist))
	_ = resp.Body.Close()
	assert.Len(t, hist.Records, 2)

	resp, err = http.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Error(t, rt.Executor.Ping(context.Background()), "executor is closed by its shutdown hook")
}

func TestBootstrap_InvalidPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Policy.AllowedTables = nil

	_, err := Bootstrap(context.Background(), cfg, Options{Completer: llm.CompleterFunc(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation policy")
}

func TestBootstrap_MissingDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := Bootstrap(context.Background(), cfg, Options{Completer: llm.CompleterFunc(nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executor")
}

func TestNewCompleter_MissingKeyFailsCalls(t *testing.T) {
	c := newCompleter(context.Background(), config.LLMConfig{Provider: "openai"}, zerolog.Nop())

	_, err := c.Complete(context.Background(), llm.Request{Prompt: "x"})
	require.ErrorIs(t, err, llm.ErrNoAPIKey)

	p := proposer.NewLLMProposer(c, proposer.NewPromptBuilder([]string{"corporate_tickets"}, 10))
	_, err = p.Propose(context.Background(), proposer.Request{Query: "q"})
	assert.ErrorIs(t, err, proposer.ErrUnavailable)
}
