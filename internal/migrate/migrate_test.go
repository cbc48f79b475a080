package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "doccontrol.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestRunMigrations_SQLite(t *testing.T) {
	db := openSQLite(t)

	require.NoError(t, RunMigrations(db, "sqlite"))
	for _, table := range []string{
		"document_types", "control_number_sequences", "document_folders", "documents",
		"document_revisions", "document_approvals", "document_reviews",
		"document_distributions", "document_acknowledgments", "document_archives",
	} {
		assert.True(t, tableExists(t, db, table), table)
	}

	version, dirty, err := GetMigrationVersion(db, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Running again is a no-op.
	require.NoError(t, RunMigrations(db, "sqlite"))

	_, err = db.Exec(`INSERT INTO documents (id, company_id, control_number, type_code, sequence_number, title)
		VALUES ('a', 'acme', 'DOC-POL-0001', 'POL', 1, 'Policy')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO documents (id, company_id, control_number, type_code, sequence_number, title)
		VALUES ('b', 'acme', 'DOC-POL-0001', 'POL', 1, 'Duplicate')`)
	assert.Error(t, err, "control numbers are unique per company")

	require.NoError(t, Rollback(db, "sqlite", 1))
	assert.False(t, tableExists(t, db, "documents"))
}

func TestRunMigrations_UnsupportedDriver(t *testing.T) {
	db := openSQLite(t)
	assert.ErrorContains(t, RunMigrations(db, "mysql"), "unsupported database driver")
	assert.Error(t, Rollback(db, "sqlite", 0))
}
