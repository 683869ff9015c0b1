package sqlite_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sealnote/pkg/adapters/sqlite"
	"github.com/aretw0/sealnote/pkg/core"
	"github.com/aretw0/sealnote/pkg/core/coretest"
)

func newRepo(dir string) core.Repository {
	return sqlite.NewRepository(sqlite.Config{Path: filepath.Join(dir, "alice.sqlite")})
}

func TestConformance(t *testing.T) {
	coretest.RunRepositorySuite(t, newRepo, coretest.SuiteOptions{Durable: true})
}

func TestPragmas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alice.sqlite")
	repo := sqlite.NewRepository(sqlite.Config{Path: path})
	require.NoError(t, repo.Initialize(ctx))
	require.NoError(t, repo.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestMigrateFromVersionZero(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alice.sqlite")

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE "note-metadata" (id TEXT PRIMARY KEY, record TEXT NOT NULL)`,
		`CREATE TABLE "note-content" (id TEXT PRIMARY KEY, content BLOB NOT NULL)`,
		`INSERT INTO "note-metadata" VALUES ('1', '{"id":"1","protectedResourceId":"r1"}')`,
		`INSERT INTO "note-content" VALUES ('1', x'0102')`,
		`INSERT INTO "note-metadata" VALUES ('2', '{"id":"2","protectedResourceId":"r2"}')`,
		`INSERT INTO "note-content" VALUES ('3', x'03')`,
	} {
		_, err := legacy.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, legacy.Close())

	repo := sqlite.NewRepository(sqlite.Config{Path: path})
	db, err := core.Open(ctx, repo)
	require.NoError(t, err)
	defer db.Close()

	recs, err := db.GetAllMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "1", recs[0].ID)

	_, ok, err := db.GetContent(ctx, "3")
	require.NoError(t, err)
	assert.False(t, ok, "unpaired content should be dropped")

	data, ok, err := db.GetContent(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, data)

	assert.Equal(t, 1, repo.State().(sqlite.RepositoryState).SchemaVersion)
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alice.sqlite")
	rw := sqlite.NewRepository(sqlite.Config{Path: path})
	require.NoError(t, rw.Initialize(ctx))
	require.NoError(t, rw.Close())

	repo := sqlite.NewRepository(sqlite.Config{Path: path, ReadOnly: true})
	db, err := core.Open(ctx, repo)
	require.NoError(t, err)
	defer db.Close()

	err = db.PutPair(ctx, "1", core.Record{}, []byte("x"))
	require.ErrorIs(t, err, core.ErrReadOnly)
}

func TestPathIsTakenLiterally(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"..%2Fbob.sqlite", "alice%20smith.sqlite", "alice smith.sqlite", "q?mode=ro.sqlite"} {
		t.Run(name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "root")
			path := filepath.Join(root, name)

			db, err := core.Open(ctx, sqlite.NewRepository(sqlite.Config{Path: path}))
			require.NoError(t, err)
			require.NoError(t, db.PutPair(ctx, "1", core.Record{ID: "1"}, []byte("x")))
			require.NoError(t, db.Close())

			_, err = os.Stat(path)
			require.NoError(t, err, "database not created at %s", path)

			entries, err := os.ReadDir(filepath.Dir(root))
			require.NoError(t, err)
			require.Len(t, entries, 1, "database escaped its directory")
		})
	}
}
