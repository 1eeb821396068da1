package sqlitemigrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_UpSection(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no_markers", "CREATE TABLE a (id INTEGER);", "CREATE TABLE a (id INTEGER);"},
		{"up_only", "-- +migrate Up\nCREATE TABLE a (id INTEGER);", "\nCREATE TABLE a (id INTEGER);"},
		{"up_and_down", "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;", "\nCREATE TABLE a (id INTEGER);\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UpSection(tt.content))
		})
	}
}

func Test_Apply_runs_each_file_once(t *testing.T) {
	db := openDB(t)
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;")},
		"0002_b.sql": {Data: []byte("-- +migrate Up\nINSERT INTO a (id) VALUES (1);")},
		"notes.txt":  {Data: []byte("ignored")},
	}

	require.NoError(t, Apply(context.Background(), db, fsys, ""))
	require.NoError(t, Apply(context.Background(), db, fsys, "."))

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM a`).Scan(&rows))
	assert.Equal(t, 1, rows)

	var applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	assert.Equal(t, 2, applied)
}

func Test_Apply_requires_db(t *testing.T) {
	assert.Error(t, Apply(context.Background(), nil, fstest.MapFS{}, ""))
}
