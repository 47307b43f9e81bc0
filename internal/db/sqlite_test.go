package db

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsFSIsIdempotent(t *testing.T) {
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	migrations := fstest.MapFS{
		"0002_second.sql": {Data: []byte(`ALTER TABLE notes ADD COLUMN body TEXT;`)},
		"0001_first.sql":  {Data: []byte(`CREATE TABLE notes (id INTEGER PRIMARY KEY);`)},
		"README.md":       {Data: []byte(`not a migration`)},
	}
	ctx := context.Background()

	require.NoError(t, RunMigrationsFS(ctx, database, migrations))
	require.NoError(t, RunMigrationsFS(ctx, database, migrations))

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)

	_, err = database.Exec(`INSERT INTO notes (id, body) VALUES (1, 'x')`)
	assert.NoError(t, err)
}

func TestRunMigrationsFSRollsBackFailure(t *testing.T) {
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	err = RunMigrationsFS(context.Background(), database, fstest.MapFS{
		"0001_broken.sql": {Data: []byte(`CREATE TABLE;`)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_broken.sql")

	var count int
	require.NoError(t, database.QueryRow(`SELECT COUNT(1) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRepositoryMigrationsApply(t *testing.T) {
	database, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, RunMigrations(context.Background(), database, filepath.Join("..", "..", "migrations")))

	for _, table := range []string{"users", "pomodoro_settings", "pomodoro_states", "pomodoro_sessions"} {
		var name string
		err := database.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}
