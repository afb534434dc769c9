// SPDX-License-Identifier: MIT

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/persistence/sqlite"
)

// Outcomes recorded for a gateway request. They match the metric labels.
const (
	OutcomeSuccess             = "success"
	OutcomeClarification       = "clarification"
	OutcomeBlocked             = "blocked"
	OutcomeInputRejected       = "input_rejected"
	OutcomeGenerationExhausted = "generation_exhausted"
	OutcomeProposerUnavailable = "proposer_unavailable"
	OutcomeExecutionError      = "execution_error"
)

const (
	historySchemaVersion = 1
	defaultRecentLimit   = 50
	maxRecentLimit       = 500
)

// Record is one gateway request as kept in the history.
type Record struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	RequestID       string    `json:"request_id,omitempty"`
	RemoteAddr      string    `json:"-"`
	Query           string    `json:"query"`
	Outcome         string    `json:"outcome"`
	Intent          string    `json:"intent"`
	Domain          string    `json:"domain"`
	Attempts        int       `json:"attempts"`
	CanonicalSQL    string    `json:"canonical_sql,omitempty"`
	RejectionCode   string    `json:"rejection_code,omitempty"`
	RejectionDetail string    `json:"rejection_detail,omitempty"`
	Rows            int       `json:"rows"`
	DurationMS      int64     `json:"duration_ms"`
}

// History persists records.
type History interface {
	Append(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// SqliteHistory implements History using SQLite.
type SqliteHistory struct {
	DB        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// NewSqliteHistory opens (or creates) the history database at dbPath.
// Rows older than retention are pruned on open and after each append;
// retention <= 0 keeps everything.
func NewSqliteHistory(ctx context.Context, dbPath string, retention time.Duration) (*SqliteHistory, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	issues, err := sqlite.VerifyIntegrity(ctx, db, "quick")
	if err != nil || len(issues) > 0 {
		_ = db.Close()
		if err == nil {
			err = fmt.Errorf("integrity check: %v", issues)
		}
		return nil, fmt.Errorf("history store: %w", err)
	}

	h := &SqliteHistory{DB: db, retention: retention, now: time.Now}
	if err := h.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store: migration failed: %w", err)
	}
	if _, err := h.prune(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store: prune failed: %w", err)
	}
	return h, nil
}

func (h *SqliteHistory) migrate(ctx context.Context) error {
	currentVersion, err := sqlite.UserVersion(ctx, h.DB)
	if err != nil {
		return err
	}
	if currentVersion >= historySchemaVersion {
		return nil
	}

	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		created_at_ms INTEGER NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		query TEXT NOT NULL,
		outcome TEXT NOT NULL,
		intent TEXT NOT NULL,
		domain TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		canonical_sql TEXT NOT NULL DEFAULT '',
		rejection_code TEXT NOT NULL DEFAULT '',
		rejection_detail TEXT NOT NULL DEFAULT '',
		row_count INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_query_history_created ON query_history(created_at_ms);
	`
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", historySchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Append stores rec, assigning an ID and timestamp when missing.
func (h *SqliteHistory) Append(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = h.now()
	}
	query := `
	INSERT INTO query_history (id, created_at_ms, request_id, query, outcome, intent, domain,
		attempts, canonical_sql, rejection_code, rejection_detail, row_count, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := h.DB.ExecContext(ctx, query,
		rec.ID, rec.Timestamp.UnixMilli(), rec.RequestID, rec.Query, rec.Outcome, rec.Intent, rec.Domain,
		rec.Attempts, rec.CanonicalSQL, rec.RejectionCode, rec.RejectionDetail, rec.Rows, rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	if _, err := h.prune(ctx); err != nil {
		log.FromContext(ctx).Warn().Err(err).Str(log.FieldEvent, "history.prune_failed").Msg("history prune failed")
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 uses a default.
func (h *SqliteHistory) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	query := `
	SELECT id, created_at_ms, request_id, query, outcome, intent, domain, attempts,
		canonical_sql, rejection_code, rejection_detail, row_count, duration_ms
	FROM query_history ORDER BY created_at_ms DESC, rowid DESC LIMIT ?
	`
	rows, err := h.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("history recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []Record{}
	for rows.Next() {
		var (
			rec Record
			ms  int64
		)
		if err := rows.Scan(&rec.ID, &ms, &rec.RequestID, &rec.Query, &rec.Outcome, &rec.Intent, &rec.Domain,
			&rec.Attempts, &rec.CanonicalSQL, &rec.RejectionCode, &rec.RejectionDetail, &rec.Rows, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("history scan: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// prune deletes rows older than the retention window.
func (h *SqliteHistory) prune(ctx context.Context) (int64, error) {
	if h.retention <= 0 {
		return 0, nil
	}
	cutoff := h.now().Add(-h.retention).UnixMilli()
	res, err := h.DB.ExecContext(ctx, "DELETE FROM query_history WHERE created_at_ms < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping reports whether the history database is reachable.
func (h *SqliteHistory) Ping(ctx context.Context) error {
	return h.DB.PingContext(ctx)
}

// Close closes the database.
func (h *SqliteHistory) Close() error {
	return h.DB.Close()
}

// ErrHistoryDisabled is returned by Trail.Recent when no history store is configured.
var ErrHistoryDisabled = errors.New("audit: query history is disabled")

// Trail fans a record out to the audit log and, when configured, the history.
type Trail struct {
	logger  *Logger
	history History
}

// NewTrail returns a Trail. history may be nil.
func NewTrail(logger *Logger, history History) *Trail {
	if logger == nil {
		logger = NewLogger()
	}
	return &Trail{logger: logger, history: history}
}

// Logger returns the audit logger.
func (t *Trail) Logger() *Logger { return t.logger }

// Record logs rec and appends it to the history. History failures are
// logged, never returned: the caller's response does not depend on them.
func (t *Trail) Record(ctx context.Context, rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	t.logger.Query(ctx, rec)
	if t.history == nil {
		return
	}
	if err := t.history.Append(ctx, rec); err != nil {
		log.FromContext(ctx).Error().Err(err).Str(log.FieldEvent, "history.append_failed").Msg("failed to persist query history")
	}
}

// Recent proxies to the history.
func (t *Trail) Recent(ctx context.Context, limit int) ([]Record, error) {
	if t.history == nil {
		return nil, ErrHistoryDisabled
	}
	return t.history.Recent(ctx, limit)
}
