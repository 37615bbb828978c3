package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY,
	label TEXT NOT NULL
);`

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), "test.db"),
		Name: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Migrate(testSchema))
	require.NoError(t, db.Migrate(testSchema))

	_, err := db.Exec(`INSERT INTO items (label) VALUES (?)`, "a")
	assert.NoError(t, err)
}

func TestMigrate_RollsBackBadDDL(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.Migrate("CREATE GARBAGE"))
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(testSchema))

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO items (label) VALUES (?)`, "kept")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(testSchema))

	errAbort := errors.New("abort")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO items (label) VALUES (?)`, "dropped"); err != nil {
			return err
		}
		return errAbort
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errAbort)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTransaction_RecoversFromPanic(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(testSchema))

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
}

func TestHealthChecks(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(testSchema))

	ctx := context.Background()
	assert.NoError(t, db.QuickCheck(ctx))
	assert.NoError(t, db.HealthCheck(ctx))
	assert.NoError(t, db.WALCheckpoint(""))
}
