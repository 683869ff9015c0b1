package coretest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sealnote/pkg/core"
)

// Factory returns an uninitialized engine keeping its state under dir. Two
// engines created for the same dir must see the same data if the engine is
// durable.
type Factory func(dir string) core.Repository

// SuiteOptions tunes the conformance suite for an engine.
type SuiteOptions struct {
	// Durable engines must keep data across Close and re-open.
	Durable bool
}

// RunRepositorySuite checks that an engine honours the pairing contract of
// core.Database.
func RunRepositorySuite(t *testing.T, newRepo Factory, opts SuiteOptions) {
	ctx := context.Background()

	open := func(t *testing.T) *core.Database {
		t.Helper()
		db, err := core.Open(ctx, newRepo(t.TempDir()))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}

	record := func(id string) core.Record {
		return core.Record{
			ID:                  id,
			ProtectedResourceID: "res-" + id,
			Metadata:            core.Metadata{"title": "note " + id},
			CreatedAt:           time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}
	}

	t.Run("Initialize Is Idempotent", func(t *testing.T) {
		repo := newRepo(t.TempDir())
		require.NoError(t, repo.Initialize(ctx))
		require.NoError(t, repo.Initialize(ctx))
		require.NoError(t, repo.Close())
	})

	t.Run("Empty Database", func(t *testing.T) {
		db := open(t)
		recs, err := db.GetAllMetadata(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)

		_, ok, err := db.GetContent(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("PutPair Writes Both Tables", func(t *testing.T) {
		db := open(t)
		require.NoError(t, db.PutPair(ctx, "1", record("1"), []byte("cipher-1")))

		recs, err := db.GetAllMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "1", recs[0].ID)
		assert.Equal(t, "res-1", recs[0].ProtectedResourceID)
		assert.Equal(t, "note 1", recs[0].Metadata["title"])
		assert.True(t, recs[0].CreatedAt.Equal(record("1").CreatedAt))

		data, ok, err := db.GetContent(ctx, "1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("cipher-1"), data)
	})

	t.Run("PutPair Overwrites", func(t *testing.T) {
		db := open(t)
		require.NoError(t, db.PutPair(ctx, "1", record("1"), []byte("v1")))
		rec := record("1")
		rec.Metadata = core.Metadata{"title": "renamed"}
		require.NoError(t, db.PutPair(ctx, "1", rec, []byte("v2")))

		recs, err := db.GetAllMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "renamed", recs[0].Metadata["title"])

		data, _, err := db.GetContent(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), data)
	})

	t.Run("PutPair Rejects Empty ID", func(t *testing.T) {
		db := open(t)
		err := db.PutPair(ctx, "", record(""), []byte("x"))
		require.ErrorIs(t, err, core.ErrTransactionFailed)
	})

	t.Run("DeletePair Removes Both", func(t *testing.T) {
		db := open(t)
		require.NoError(t, db.PutPair(ctx, "1", record("1"), []byte("a")))
		require.NoError(t, db.PutPair(ctx, "2", record("2"), []byte("b")))
		require.NoError(t, db.DeletePair(ctx, "1"))

		recs, err := db.GetAllMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "2", recs[0].ID)

		_, ok, err := db.GetContent(ctx, "1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DeletePair Missing Is NoOp", func(t *testing.T) {
		db := open(t)
		require.NoError(t, db.DeletePair(ctx, "ghost"))
		require.NoError(t, db.DeletePair(ctx, "ghost"))
	})

	t.Run("Failed Update Leaves Nothing", func(t *testing.T) {
		db := open(t)
		boom := errors.New("boom")
		err := db.Repository().Update(ctx, func(tx core.Transaction) error {
			if err := tx.PutMetadata("1", record("1")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		recs, err := db.GetAllMetadata(ctx)
		require.NoError(t, err)
		assert.Empty(t, recs)
		_, ok, err := db.GetContent(ctx, "1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Keys With Separators", func(t *testing.T) {
		db := open(t)
		id := "a/b\\c:d e"
		require.NoError(t, db.PutPair(ctx, id, record(id), []byte("odd")))

		recs, err := db.GetAllMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, id, recs[0].ID)

		data, ok, err := db.GetContent(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte("odd"), data)
	})

	t.Run("Reopen Keeps Data", func(t *testing.T) {
		if !opts.Durable {
			t.Skip("engine is not durable")
		}
		dir := t.TempDir()
		db, err := core.Open(ctx, newRepo(dir))
		require.NoError(t, err)
		require.NoError(t, db.PutPair(ctx, "1", record("1"), []byte("persisted")))
		require.NoError(t, db.Close())

		db, err = core.Open(ctx, newRepo(dir))
		require.NoError(t, err)
		defer db.Close()

		data, found, err := db.GetContent(ctx, "1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []byte("persisted"), data)
	})

	t.Run("Concurrent PutPair", func(t *testing.T) {
		db := open(t)
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers*2)
		for i := 0; i < workers; i++ {
			wg.Add(2)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("w%d", i)
				errs <- db.PutPair(ctx, id, record(id), []byte(id))
			}(i)
			go func(i int) {
				defer wg.Done()
				errs <- db.PutPair(ctx, "shared", record("shared"), []byte(fmt.Sprintf("s%d", i)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		recs, err := db.GetAllMetadata(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, workers+1)
		for _, rec := range recs {
			_, ok, err := db.GetContent(ctx, rec.ID)
			require.NoError(t, err)
			assert.True(t, ok, "content missing for %s", rec.ID)
		}
	})
}
