package persistence

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", dsn(":memory:"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestFreshSchemaIsCurrent(t *testing.T) {
	db := openRaw(t)
	require.NoError(t, initializeSchemaWithMigrations(db))

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Idempotent.
	require.NoError(t, initializeSchemaWithMigrations(db))
}

func TestMigrateFromVersion1(t *testing.T) {
	db := openRaw(t)
	_, err := GetSchemaVersion(db)
	require.NoError(t, err)
	for _, stmt := range schemaV1 {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, setSchemaVersion(db, 1))
	_, err = db.Exec(`INSERT INTO sessions (user_id, chat_id, link) VALUES (1, 10, 'https://forms.example/old')`)
	require.NoError(t, err)

	require.NoError(t, initializeSchemaWithMigrations(db))

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	var notices string
	require.NoError(t, db.QueryRow(`SELECT notices_json FROM sessions WHERE user_id = 1`).Scan(&notices))
	assert.Equal(t, "[]", notices)

	var idx int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_jobs_user'`).Scan(&idx))
	assert.Equal(t, 1, idx)
}

func TestNewerSchemaIsRejected(t *testing.T) {
	db := openRaw(t)
	_, err := GetSchemaVersion(db)
	require.NoError(t, err)
	require.NoError(t, setSchemaVersion(db, CurrentSchemaVersion+1))

	err = initializeSchemaWithMigrations(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}
