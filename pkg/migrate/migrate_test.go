package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"migrations/001_create_tiles.up.sql":   {Data: []byte(`CREATE TABLE tiles (name TEXT PRIMARY KEY);`)},
		"migrations/001_create_tiles.down.sql": {Data: []byte(`DROP TABLE tiles;`)},
		"migrations/002_add_year.up.sql":       {Data: []byte(`ALTER TABLE tiles ADD COLUMN year INTEGER;`)},
		"migrations/002_add_year.down.sql":     {Data: []byte(`CREATE TABLE tiles_old (name TEXT PRIMARY KEY); DROP TABLE tiles; ALTER TABLE tiles_old RENAME TO tiles;`)},
		"migrations/README.md":                 {Data: []byte("ignored")},
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestFSProviderGetMigrations(t *testing.T) {
	p := NewFSProvider(testFS(), "migrations", "")

	migrations, err := p.GetMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, 1, migrations[0].Version)
	require.Equal(t, "create tiles", migrations[0].Name)
	require.NotEmpty(t, migrations[0].Down)
	require.Equal(t, 2, migrations[1].Version)
}

func TestMigrateUpAndDown(t *testing.T) {
	require := require.New(t)
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", "schema_migrations"), nil)

	pending, err := m.GetPendingMigrations()
	require.NoError(err)
	require.Len(pending, 2)

	require.NoError(m.MigrateUp())
	version, err := m.GetCurrentVersion()
	require.NoError(err)
	require.Equal(2, version)

	_, err = db.Exec(`INSERT INTO tiles (name, year) VALUES ('h18v04', 2005)`)
	require.NoError(err)

	// Applying again is a no-op.
	require.NoError(m.MigrateUp())

	require.NoError(m.MigrateTo(1))
	version, err = m.GetCurrentVersion()
	require.NoError(err)
	require.Equal(1, version)

	_, err = db.Exec(`INSERT INTO tiles (name, year) VALUES ('h18v05', 2005)`)
	require.Error(err, "year column should be gone after rollback")

	require.NoError(m.MigrateDown(0))
	version, err = m.GetCurrentVersion()
	require.NoError(err)
	require.Equal(0, version)
}

func TestMigrateDownRejectsHigherTarget(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, NewFSProvider(testFS(), "migrations", ""), nil)
	require.NoError(t, m.MigrateTo(1))
	require.Error(t, m.MigrateDown(1))
}
