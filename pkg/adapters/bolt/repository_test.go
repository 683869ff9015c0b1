package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/aretw0/sealnote/pkg/adapters/bolt"
	"github.com/aretw0/sealnote/pkg/core"
	"github.com/aretw0/sealnote/pkg/core/coretest"
)

func newRepo(dir string) core.Repository {
	return bolt.NewRepository(bolt.Config{Path: filepath.Join(dir, "alice.db")})
}

func TestConformance(t *testing.T) {
	coretest.RunRepositorySuite(t, newRepo, coretest.SuiteOptions{Durable: true})
}

func TestSecondOwnerIsRejected(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alice.db")

	first := bolt.NewRepository(bolt.Config{Path: path})
	require.NoError(t, first.Initialize(ctx))
	defer first.Close()

	second := bolt.NewRepository(bolt.Config{Path: path, Timeout: 50 * time.Millisecond})
	err := second.Initialize(ctx)
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alice.db")

	rw := bolt.NewRepository(bolt.Config{Path: path})
	db, err := core.Open(ctx, rw)
	require.NoError(t, err)
	require.NoError(t, db.PutPair(ctx, "1", core.Record{ProtectedResourceID: "r"}, []byte("c")))
	require.NoError(t, db.Close())

	ro := bolt.NewRepository(bolt.Config{Path: path, ReadOnly: true})
	db, err = core.Open(ctx, ro)
	require.NoError(t, err)
	defer db.Close()

	recs, err := db.GetAllMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	err = db.PutPair(ctx, "2", core.Record{}, []byte("c"))
	require.ErrorIs(t, err, core.ErrReadOnly)
}

func TestUpgradeFromVersionOne(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alice.db")

	legacy, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, legacy.Update(func(tx *bbolt.Tx) error {
		content, err := tx.CreateBucket([]byte("notes"))
		if err != nil {
			return err
		}
		meta, err := tx.CreateBucket([]byte("notes-meta"))
		if err != nil {
			return err
		}
		if err := content.Put([]byte("1"), []byte("cipher")); err != nil {
			return err
		}
		if err := meta.Put([]byte("1"), []byte(`{"id":"1","protectedResourceId":"r1"}`)); err != nil {
			return err
		}
		// Orphaned metadata is not carried over.
		return meta.Put([]byte("2"), []byte(`{"id":"2","protectedResourceId":"r2"}`))
	}))
	require.NoError(t, legacy.Close())

	repo := bolt.NewRepository(bolt.Config{Path: path})
	db, err := core.Open(ctx, repo)
	require.NoError(t, err)
	defer db.Close()

	recs, err := db.GetAllMetadata(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].ProtectedResourceID)

	data, ok, err := db.GetContent(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("cipher"), data)

	state := repo.State().(bolt.RepositoryState)
	assert.Equal(t, 2, state.Version)
}
