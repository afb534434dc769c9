// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package executor runs guard-approved statements against the ticket database.
//
// Every call is bounded by a query timeout. On MySQL the same ceiling is also
// set server side with MAX_EXECUTION_TIME on a pinned connection, so a
// runaway statement is killed by the server even if the client goes away.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ManuGH/querygate/internal/config"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/metrics"
	"github.com/ManuGH/querygate/internal/persistence/sqlite"
)

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// mysqlQueryTimeout is ER_QUERY_TIMEOUT, raised when MAX_EXECUTION_TIME is exceeded.
const mysqlQueryTimeout = 3024

// Row is one result row keyed by column name.
type Row = map[string]any

// Result is the materialized output of one statement.
type Result struct {
	Columns []string
	Rows    []Row
}

// Executor runs one canonical statement.
type Executor interface {
	Execute(ctx context.Context, statement string) (Result, error)
}

// DB is the database/sql backed Executor.
type DB struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
}

// New wraps an open pool. timeout <= 0 disables the per-call ceiling.
func New(db *sql.DB, driver string, timeout time.Duration) *DB {
	return &DB{db: db, driver: strings.ToLower(driver), timeout: timeout}
}

// Open connects using cfg and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite:
		sc := sqlite.ReadOnlyConfig()
		if cfg.MaxOpenConns > 0 {
			sc.MaxOpenConns = cfg.MaxOpenConns
		}
		db, err := sqlite.Open(cfg.DSN, sc)
		if err != nil {
			return nil, fmt.Errorf("executor: %w", err)
		}
		return New(db, DriverSQLite, cfg.QueryTimeout), nil
	case DriverMySQL, "":
		db, err := sql.Open("mysql", MySQLDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("executor: open mysql: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
		}
		db.SetConnMaxLifetime(30 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("executor: ping mysql: %w", err)
		}
		return New(db, DriverMySQL, cfg.QueryTimeout), nil
	default:
		return nil, fmt.Errorf("executor: unsupported driver %q", cfg.Driver)
	}
}

// MySQLDSN returns cfg.DSN when set, otherwise a DSN assembled from the
// discrete host, port, user, password and name settings.
func MySQLDSN(cfg config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Timeout = 5 * time.Second
	if cfg.QueryTimeout > 0 {
		mc.ReadTimeout = cfg.QueryTimeout + 5*time.Second
	}
	return mc.FormatDSN()
}

// Driver reports the configured driver name.
func (d *DB) Driver() string { return d.driver }

// Ping checks connectivity. Used by readiness checks.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// Execute runs statement and returns every row. The statement must already
// have been accepted by the guard; Execute adds no validation of its own.
func (d *DB) Execute(ctx context.Context, statement string) (Result, error) {
	logger := xglog.FromContext(ctx).With().Str(xglog.FieldComponent, "executor").Logger()
	start := time.Now()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res, err := d.run(ctx, statement)
	elapsed := time.Since(start)
	if err != nil {
		execErr := classify(ctx, err)
		metrics.RecordExecution(execErr.Kind.metricResult(), 0, elapsed)
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "executor.failed").
			Str("kind", execErr.Kind.String()).
			Int64(xglog.FieldDuration, elapsed.Milliseconds()).
			Msg("statement failed")
		return Result{}, execErr
	}

	metrics.RecordExecution("ok", len(res.Rows), elapsed)
	logger.Debug().
		Str(xglog.FieldEvent, "executor.done").
		Int(xglog.FieldRows, len(res.Rows)).
		Int64(xglog.FieldDuration, elapsed.Milliseconds()).
		Msg("statement executed")
	return res, nil
}

func (d *DB) run(ctx context.Context, statement string) (Result, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return Result{}, &Error{Kind: KindUnavailable, Err: err}
	}
	defer func() { _ = conn.Close() }()

	if d.driver == DriverMySQL && d.timeout > 0 {
		// Session scoped, so it must run on the same connection as the statement.
		set := fmt.Sprintf("SET SESSION MAX_EXECUTION_TIME=%d", d.timeout.Milliseconds())
		if _, err := conn.ExecContext(ctx, set); err != nil {
			return Result{}, fmt.Errorf("set execution ceiling: %w", err)
		}
	}

	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = rows.Close() }()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) (Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}
	res := Result{Columns: cols, Rows: []Row{}}

	numeric := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			numeric[i] = isNumericType(ct.DatabaseTypeName())
		}
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i], numeric[i])
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// normalizeValue turns driver values into JSON-friendly ones. MySQL returns
// text and DECIMAL columns as []byte; only columns of a numeric type become
// numbers, so VARCHAR codes that look numeric stay text.
func normalizeValue(v any, numeric bool) any {
	switch t := v.(type) {
	case []byte:
		s := string(t)
		if !numeric {
			return s
		}
		// ZEROFILL codes stay text.
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}

// isNumericType reports whether a driver column type name holds numbers.
func isNumericType(name string) bool {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "UNSIGNED ")
	switch name {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
		"DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL":
		return true
	default:
		return false
	}
}

// Kind classifies an execution failure.
type Kind uint8

const (
	// KindDatabase is any driver or statement error.
	KindDatabase Kind = iota + 1
	// KindTimeout means the client deadline or the server ceiling was hit.
	KindTimeout
	// KindUnavailable means no connection could be obtained.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnavailable:
		return "unavailable"
	default:
		return "database"
	}
}

func (k Kind) metricResult() string {
	if k == KindTimeout {
		return "timeout"
	}
	return "error"
}

// TimeoutMessage is the user-facing detail for timed out statements.
const TimeoutMessage = "Query timed out. The request was too large or complex."

// Error is an execution failure. The wrapped error carries driver detail for
// logs; Detail is safe to show to callers.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return "executor: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the redacted, user-facing description of the failure.
func (e *Error) Detail() string {
	switch e.Kind {
	case KindTimeout:
		return TimeoutMessage
	case KindUnavailable:
		return "The database is currently unavailable."
	default:
		return "The database rejected the query."
	}
}

func classify(ctx context.Context, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind != KindTimeout && isTimeout(ctx, e.Err) {
			return &Error{Kind: KindTimeout, Err: e.Err}
		}
		return e
	}
	if isTimeout(ctx, err) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindDatabase, Err: err}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlQueryTimeout {
		return true
	}
	return strings.Contains(err.Error(), "MAX_EXECUTION_TIME")
}
