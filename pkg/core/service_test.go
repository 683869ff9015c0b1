package core_test

import (
	"bytes"
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sealnote/pkg/adapters/memory"
	"github.com/aretw0/sealnote/pkg/core"
	"github.com/aretw0/sealnote/pkg/core/coretest"
)

type env struct {
	repo    *memory.Repository
	session *coretest.Session
	service *core.Service
}

func setup(t *testing.T, opts ...core.ServiceOption) *env {
	t.Helper()
	repo := memory.NewRepository()
	db, err := core.Open(context.Background(), repo)
	require.NoError(t, err)

	sess := coretest.NewSession("alice@example.com")
	svc := core.NewService(db, sess, opts...)
	t.Cleanup(func() { svc.Close() })
	return &env{repo: repo, session: sess, service: svc}
}

func TestOpenFailures(t *testing.T) {
	_, err := core.Open(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrStorageUnavailable)

	repo := memory.NewRepository()
	require.NoError(t, repo.Close())
	_, err = core.Open(context.Background(), repo)
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestSaveAndRead(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	n := core.NewNote("buy milk", core.Metadata{"title": "groceries"})
	require.Equal(t, core.StateDraft, n.State())
	require.NoError(t, e.service.Save(ctx, n))

	assert.NotEmpty(t, n.ID)
	assert.NotEmpty(t, n.ProtectedResourceID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.Nil(t, n.Content, "plaintext must be dropped after save")
	assert.NotEmpty(t, n.EncryptedContent)
	assert.Equal(t, core.StateUnloaded, n.State())

	notes, err := e.service.GetNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	got := notes[0]
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "groceries", got.Metadata["title"])
	assert.Nil(t, got.Content)
	assert.Nil(t, got.EncryptedContent)
	assert.Equal(t, core.StateUnloaded, got.State())

	require.NoError(t, e.service.GetContent(ctx, got))
	text, ok := got.Text()
	require.True(t, ok)
	assert.Equal(t, "buy milk", text)
	assert.Equal(t, n.EncryptedContent, got.EncryptedContent)
	assert.Equal(t, core.StateLoaded, got.State())

	got.Collapse()
	assert.Equal(t, core.StateCollapsed, got.State())
	assert.NotEmpty(t, got.EncryptedContent)
}

func TestStoredBytesHoldNoPlaintext(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	n := core.NewNote("the launch code is 0000", nil)
	require.NoError(t, e.service.Save(ctx, n))

	stored, ok, err := e.repo.Content(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, string(stored), "launch code")

	recs, err := e.repo.Metadata(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, n.Record(), recs[0])
}

func TestSaveReusesResource(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	n := core.NewNote("v1", nil)
	require.NoError(t, e.service.Save(ctx, n))
	id, res := n.ID, n.ProtectedResourceID

	n.SetText("v2")
	assert.Equal(t, core.StateDraft, n.State())
	require.NoError(t, e.service.Save(ctx, n))
	assert.Equal(t, id, n.ID)
	assert.Equal(t, res, n.ProtectedResourceID)
	assert.Equal(t, 1, e.session.Creates)

	loaded := &core.Note{ID: id, ProtectedResourceID: res}
	require.NoError(t, e.service.GetContent(ctx, loaded))
	text, _ := loaded.Text()
	assert.Equal(t, "v2", text)
}

func TestSaveRejectsMissingContent(t *testing.T) {
	e := setup(t)
	err := e.service.Save(context.Background(), &core.Note{ID: "1"})
	require.ErrorIs(t, err, core.ErrInvalidNote)

	err = e.service.Save(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrInvalidNote)
}

func TestDistinctIDs(t *testing.T) {
	ctx := context.Background()
	frozen := time.UnixMilli(1_700_000_000_000)
	e := setup(t, core.WithClock(func() time.Time { return frozen }))

	a := core.NewNote("a", nil)
	b := core.NewNote("b", nil)
	require.NoError(t, e.service.Save(ctx, a))
	require.NoError(t, e.service.Save(ctx, b))

	assert.Equal(t, "1700000000000", a.ID)
	assert.Equal(t, "1700000000001", b.ID)

	notes, err := e.service.GetNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestEncryptionFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()

	for name, fail := range map[string]func(*coretest.Session){
		"Encrypt": func(s *coretest.Session) { s.FailEncrypt = true },
		"Create":  func(s *coretest.Session) { s.FailCreate = true },
	} {
		t.Run(name, func(t *testing.T) {
			e := setup(t)
			fail(e.session)

			n := core.NewNote("secret", nil)
			err := e.service.Save(ctx, n)
			require.ErrorIs(t, err, core.ErrEncryptionFailed)
			require.ErrorIs(t, err, coretest.ErrFake)

			assert.Empty(t, n.ID, "assigned id must be rolled back")
			assert.Empty(t, n.ProtectedResourceID)
			text, ok := n.Text()
			assert.True(t, ok)
			assert.Equal(t, "secret", text)

			notes, err := e.service.GetNotes(ctx)
			require.NoError(t, err)
			assert.Empty(t, notes)
			assert.Empty(t, e.repo.ContentIDs())
		})
	}
}

func TestPersistenceFailureKeepsPlaintext(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	e.repo.FailNextCommits(1)

	n := core.NewNote("retry me", nil)
	err := e.service.Save(ctx, n)
	require.ErrorIs(t, err, core.ErrPersistenceFailed)
	require.ErrorIs(t, err, core.ErrTransactionFailed)

	text, ok := n.Text()
	require.True(t, ok)
	assert.Equal(t, "retry me", text)

	notes, err := e.service.GetNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
	assert.Empty(t, e.repo.ContentIDs())

	require.NoError(t, e.service.Save(ctx, n))
	assert.Equal(t, 1, e.session.Creates, "retry reuses the resource")

	notes, err = e.service.GetNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestDivergenceIsNotFound(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	n := core.NewNote("orphan", nil)
	require.NoError(t, e.service.Save(ctx, n))

	// Simulate an external mutation that removed only the content record.
	require.NoError(t, e.repo.Update(ctx, func(tx core.Transaction) error {
		return tx.DeleteContent(n.ID)
	}))

	notes, err := e.service.GetNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	err = e.service.GetContent(ctx, notes[0])
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Nil(t, notes[0].Content)
	assert.Equal(t, core.StateUnloaded, notes[0].State())
}

func TestGetContentCapabilityFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("Resource Unavailable", func(t *testing.T) {
		e := setup(t)
		n := core.NewNote("x", nil)
		require.NoError(t, e.service.Save(ctx, n))

		e.session.FailGet = true
		err := e.service.GetContent(ctx, n)
		require.ErrorIs(t, err, core.ErrResourceUnavailable)
		assert.Nil(t, n.Content)
	})

	t.Run("Decryption Failed", func(t *testing.T) {
		e := setup(t)
		n := core.NewNote("x", nil)
		require.NoError(t, e.service.Save(ctx, n))

		e.session.FailDecrypt = true
		err := e.service.GetContent(ctx, n)
		require.ErrorIs(t, err, core.ErrDecryptionFailed)
		assert.Nil(t, n.Content)
	})

	t.Run("Missing Resource ID", func(t *testing.T) {
		e := setup(t)
		require.NoError(t, e.repo.Update(ctx, func(tx core.Transaction) error {
			if err := tx.PutMetadata("1", core.Record{ID: "1"}); err != nil {
				return err
			}
			return tx.PutContent("1", []byte("junk"))
		}))
		err := e.service.GetContent(ctx, &core.Note{ID: "1"})
		require.ErrorIs(t, err, core.ErrResourceUnavailable)
	})

	t.Run("No ID", func(t *testing.T) {
		e := setup(t)
		err := e.service.GetContent(ctx, core.NewNote("draft", nil))
		require.ErrorIs(t, err, core.ErrInvalidNote)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	keep := core.NewNote("keep", nil)
	drop := core.NewNote("drop", nil)
	require.NoError(t, e.service.Save(ctx, keep))
	require.NoError(t, e.service.Save(ctx, drop))

	require.NoError(t, e.service.Delete(ctx, drop.ID))
	require.NoError(t, e.service.Delete(ctx, drop.ID), "delete is idempotent")

	notes, err := e.service.GetNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, keep.ID, notes[0].ID)
	assert.ElementsMatch(t, []string{keep.ID}, e.repo.ContentIDs())
	require.ErrorIs(t, e.service.GetContent(ctx, drop), core.ErrNotFound)

	require.ErrorIs(t, e.service.Delete(ctx, ""), core.ErrInvalidNote)
}

func TestSaveEncrypted(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	orig := core.NewNote("carried over", nil)
	require.NoError(t, e.service.Save(ctx, orig))
	ciphertext, ok, err := e.repo.Content(ctx, orig.ID)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("Stores Ciphertext Verbatim", func(t *testing.T) {
		n := &core.Note{ProtectedResourceID: orig.ProtectedResourceID, EncryptedContent: ciphertext}
		require.NoError(t, e.service.SaveEncrypted(ctx, n))
		assert.NotEmpty(t, n.ID)
		assert.NotEqual(t, orig.ID, n.ID)
		assert.False(t, n.CreatedAt.IsZero())
		assert.Equal(t, core.StateUnloaded, n.State())

		stored, ok, err := e.repo.Content(ctx, n.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, ciphertext, stored)

		require.NoError(t, e.service.GetContent(ctx, n))
		text, _ := n.Text()
		assert.Equal(t, "carried over", text)
	})

	t.Run("Rejects Incomplete Notes", func(t *testing.T) {
		require.ErrorIs(t, e.service.SaveEncrypted(ctx, nil), core.ErrInvalidNote)
		require.ErrorIs(t, e.service.SaveEncrypted(ctx, &core.Note{ProtectedResourceID: "r"}), core.ErrInvalidNote)
		require.ErrorIs(t, e.service.SaveEncrypted(ctx, &core.Note{EncryptedContent: []byte("c")}), core.ErrInvalidNote)
	})

	t.Run("Failed Commit Leaves Nothing", func(t *testing.T) {
		before := e.repo.ContentIDs()
		e.repo.FailNextCommits(1)
		n := &core.Note{ProtectedResourceID: orig.ProtectedResourceID, EncryptedContent: ciphertext}
		err := e.service.SaveEncrypted(ctx, n)
		require.ErrorIs(t, err, core.ErrPersistenceFailed)
		require.ErrorIs(t, err, core.ErrTransactionFailed)
		assert.ElementsMatch(t, before, e.repo.ContentIDs())

		recs, err := e.repo.Metadata(ctx)
		require.NoError(t, err)
		assert.Len(t, recs, len(before))
	})
}

func TestExtendSharing(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	n := core.NewNote("shared", nil)
	require.NoError(t, e.service.Save(ctx, n))
	commits := e.repo.State().(memory.RepositoryState).Commits

	require.NoError(t, e.service.ExtendSharing(ctx, n, []string{"bob@example.com", " "}))
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, e.session.Members(n.ProtectedResourceID))
	assert.Equal(t, commits, e.repo.State().(memory.RepositoryState).Commits, "sharing does not touch storage")

	require.ErrorIs(t, e.service.ExtendSharing(ctx, n, nil), core.ErrShareFailed)
	require.ErrorIs(t, e.service.ExtendSharing(ctx, core.NewNote("draft", nil), []string{"bob"}), core.ErrShareFailed)

	e.session.FailShare = true
	err := e.service.ExtendSharing(ctx, n, []string{"carol"})
	require.ErrorIs(t, err, core.ErrShareFailed)
	require.ErrorIs(t, err, coretest.ErrFake)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	n := core.NewNote("travel plans", core.Metadata{"title": "trip"})
	require.NoError(t, e.service.Save(ctx, n))

	notes, err := e.service.GetNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	var buf bytes.Buffer
	name, err := e.service.Export(ctx, notes[0], &buf)
	require.NoError(t, err)
	assert.Equal(t, n.ProtectedResourceID+".dpr", name)

	stored, _, err := e.repo.Content(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, buf.Bytes(), "export writes the stored ciphertext verbatim")

	imported, err := e.service.Import(ctx, "/downloads/"+name, &buf)
	require.NoError(t, err)
	assert.NotEqual(t, n.ID, imported.ID)
	assert.Equal(t, n.ProtectedResourceID, imported.ProtectedResourceID)

	notes, err = e.service.GetNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 2)

	require.NoError(t, e.service.GetContent(ctx, imported))
	text, _ := imported.Text()
	assert.Equal(t, "travel plans", text)

	_, err = e.service.Import(ctx, "notes.txt", bytes.NewReader([]byte("x")))
	require.ErrorIs(t, err, core.ErrBadFileName)

	_, err = e.service.Export(ctx, core.NewNote("draft", nil), &buf)
	require.ErrorIs(t, err, core.ErrInvalidNote)
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	n := core.NewNote("from disk", nil)
	require.NoError(t, e.service.Save(ctx, n))
	ciphertext, _, err := e.repo.Content(ctx, n.ID)
	require.NoError(t, err)

	fsys := fstest.MapFS{}
	fsys[n.ProtectedResourceID+".dpr"] = &fstest.MapFile{Data: ciphertext}
	fsys["readme.txt"] = &fstest.MapFile{Data: []byte("x")}

	imported, err := e.service.ImportFile(ctx, fsys, n.ProtectedResourceID+".dpr")
	require.NoError(t, err)
	require.NoError(t, e.service.GetContent(ctx, imported))
	text, _ := imported.Text()
	assert.Equal(t, "from disk", text)

	_, err = e.service.ImportFile(ctx, fsys, "readme.txt")
	require.ErrorIs(t, err, core.ErrBadFileName)

	_, err = e.service.ImportFile(ctx, fsys, "missing.dpr")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReadOnly(t *testing.T) {
	ctx := context.Background()
	e := setup(t, core.WithReadOnly(true))

	require.ErrorIs(t, e.service.Save(ctx, core.NewNote("x", nil)), core.ErrReadOnly)
	require.ErrorIs(t, e.service.SaveEncrypted(ctx, &core.Note{ProtectedResourceID: "r", EncryptedContent: []byte("c")}), core.ErrReadOnly)
	require.ErrorIs(t, e.service.Delete(ctx, "1"), core.ErrReadOnly)
	_, err := e.service.Import(ctx, "r.dpr", bytes.NewReader([]byte("c")))
	require.ErrorIs(t, err, core.ErrReadOnly)

	notes, err := e.service.GetNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)

	state := e.service.State().(core.ServiceState)
	assert.True(t, state.ReadOnly)
	assert.Equal(t, "memory-repository", state.RepositoryType)
	assert.Equal(t, "alice@example.com", state.Login)
}

func TestCanceledContext(t *testing.T) {
	e := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, e.service.Save(ctx, core.NewNote("x", nil)), context.Canceled)
	assert.Empty(t, e.repo.ContentIDs())
}
