package data

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	err := Init(dbPath)
	require.NoError(t, err)
	db, err := GetDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInit_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "test.db")
	err := Init(dbPath)
	require.NoError(t, err)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestInit_EmptyPath(t *testing.T) {
	err := Init("")
	assert.Error(t, err)
}

func TestInit_RunsMigrations(t *testing.T) {
	db := setupTestDB(t)

	list, err := migrations()
	require.NoError(t, err)
	require.NotEmpty(t, list)

	var version int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	assert.NoError(t, err)
	assert.Equal(t, list[len(list)-1].version, version)
}

func TestInit_Idempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	require.NoError(t, Init(dbPath))
	assert.NoError(t, Init(dbPath))
}

func TestDialectOf(t *testing.T) {
	assert.Equal(t, DialectPostgres, DialectOf("postgres://u:p@localhost:5432/db"))
	assert.Equal(t, DialectPostgres, DialectOf("postgresql://localhost/db"))
	assert.Equal(t, DialectSQLite, DialectOf("/tmp/data.db"))
	assert.Equal(t, DialectSQLite, DialectOf("data.db"))
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM x WHERE a = ? AND b IN (?, ?)"
	assert.Equal(t, q, rebind(DialectSQLite, q))
	assert.Equal(t, "SELECT * FROM x WHERE a = $1 AND b IN ($2, $3)", rebind(DialectPostgres, q))
}
