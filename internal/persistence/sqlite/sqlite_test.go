package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	rw := DSN("/tmp/h.db", DefaultConfig())
	assert.True(t, strings.HasPrefix(rw, "file:/tmp/h.db?"))
	assert.Contains(t, rw, "journal_mode%28WAL%29")
	assert.NotContains(t, rw, "mode=ro")

	ro := DSN("/tmp/h.db", ReadOnlyConfig())
	assert.Contains(t, ro, "mode=ro")
	assert.Contains(t, ro, "query_only%281%29")
	assert.NotContains(t, ro, "journal_mode")
}

func TestOpen_ReadWriteAndVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rw.sqlite")

	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))

	v, err := UserVersion(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = db.ExecContext(ctx, "PRAGMA user_version = 3")
	require.NoError(t, err)
	v, err = UserVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	issues, err := VerifyIntegrity(ctx, db, "quick")
	require.NoError(t, err)
	assert.Nil(t, issues)

	issues, err = VerifyIntegrity(ctx, db, "full")
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestOpen_ReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ro.sqlite")

	rw, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	_, err = rw.ExecContext(ctx, "CREATE TABLE tickets (id INTEGER PRIMARY KEY, status TEXT)")
	require.NoError(t, err)
	_, err = rw.ExecContext(ctx, "INSERT INTO tickets (status) VALUES ('open')")
	require.NoError(t, err)
	_, err = rw.ExecContext(ctx, "PRAGMA journal_mode=DELETE")
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro, err := Open(path, ReadOnlyConfig())
	require.NoError(t, err)
	defer func() { _ = ro.Close() }()

	var n int
	require.NoError(t, ro.QueryRowContext(ctx, "SELECT COUNT(*) FROM tickets").Scan(&n))
	assert.Equal(t, 1, n)

	_, err = ro.ExecContext(ctx, "DELETE FROM tickets")
	require.Error(t, err)
}

func TestOpen_ReadOnlyMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.sqlite"), ReadOnlyConfig())
	require.Error(t, err)
}
