package identity_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/sealnote/pkg/core"
	"github.com/aretw0/sealnote/pkg/identity"
	"github.com/aretw0/sealnote/pkg/signer"
)

type fixture struct {
	path   string
	signer *signer.Signer
	svc    *identity.Service
}

func setup(t *testing.T, approver identity.Approver) *fixture {
	t.Helper()
	s, err := signer.Generate("notes@example.com")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keyring.db")
	svc, err := identity.Open(identity.Config{
		Path:     path,
		Approver: approver,
	})
	require.NoError(t, err)
	svc.Trust(s.Requester(), s.PublicKey())
	t.Cleanup(func() { svc.Close() })
	return &fixture{path: path, signer: s, svc: svc}
}

func (f *fixture) login(t *testing.T, login string) core.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := f.svc.RequestDelegatedAccess(ctx, login, f.signer.Sign)
	require.NoError(t, err)
	require.NoError(t, req.OpenResolver(ctx))
	sess, err := req.WaitSession(ctx)
	require.NoError(t, err)
	return sess
}

func TestHandshake(t *testing.T) {
	var seen identity.ApprovalRequest
	f := setup(t, func(ctx context.Context, req identity.ApprovalRequest) (bool, error) {
		seen = req
		return true, nil
	})

	sess := f.login(t, "  Alice@Example.com ")
	assert.Equal(t, "alice@example.com", sess.Login())
	assert.Equal(t, "alice@example.com", seen.Login)
	assert.Equal(t, "notes@example.com", seen.Requester)
	assert.Len(t, seen.Fingerprint, 16)

	state := f.svc.State().(identity.ServiceState)
	assert.Equal(t, 1, state.Sessions)
	assert.Equal(t, 0, state.Pending)
}

func TestHandshakeRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("Untrusted Requester", func(t *testing.T) {
		f := setup(t, identity.AutoApprove)
		stranger, err := signer.Generate("stranger@example.com")
		require.NoError(t, err)

		_, err = f.svc.RequestDelegatedAccess(ctx, "alice", stranger.Sign)
		require.ErrorIs(t, err, identity.ErrUntrustedRequester)
	})

	t.Run("Forged Signature", func(t *testing.T) {
		f := setup(t, identity.AutoApprove)
		forger, err := signer.Generate(f.signer.Requester())
		require.NoError(t, err)

		_, err = f.svc.RequestDelegatedAccess(ctx, "alice", forger.Sign)
		require.ErrorIs(t, err, identity.ErrUntrustedRequester)
		require.ErrorIs(t, err, signer.ErrBadSignature)
	})

	t.Run("Empty Login", func(t *testing.T) {
		f := setup(t, identity.AutoApprove)
		_, err := f.svc.RequestDelegatedAccess(ctx, "  ", f.signer.Sign)
		require.ErrorIs(t, err, identity.ErrInvalidLogin)
	})

	t.Run("Signer Failure", func(t *testing.T) {
		f := setup(t, identity.AutoApprove)
		boom := errors.New("boom")
		_, err := f.svc.RequestDelegatedAccess(ctx, "alice", func(context.Context, core.SignRequest) (core.Assertion, error) {
			return core.Assertion{}, boom
		})
		require.ErrorIs(t, err, boom)
	})

	t.Run("Denied", func(t *testing.T) {
		f := setup(t, func(context.Context, identity.ApprovalRequest) (bool, error) { return false, nil })
		req, err := f.svc.RequestDelegatedAccess(ctx, "alice", f.signer.Sign)
		require.NoError(t, err)
		require.NoError(t, req.OpenResolver(ctx))
		_, err = req.WaitSession(ctx)
		require.ErrorIs(t, err, identity.ErrAccessDenied)
	})

	t.Run("Wait Bounded By Context", func(t *testing.T) {
		f := setup(t, nil)
		req, err := f.svc.RequestDelegatedAccess(ctx, "alice", f.signer.Sign)
		require.NoError(t, err)
		require.NoError(t, req.OpenResolver(ctx))

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err = req.WaitSession(waitCtx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestResourceLifecycle(t *testing.T) {
	ctx := context.Background()
	f := setup(t, identity.AutoApprove)
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")

	res, err := alice.Resources().Create(ctx, core.ResourceKindNote, core.ResourceDescriptor{Description: "note 1"}, []string{"alice"})
	require.NoError(t, err)
	require.NotEmpty(t, res.ID())

	ciphertext, err := res.Encrypt(ctx, []byte("top secret"))
	require.NoError(t, err)
	assert.NotContains(t, string(ciphertext), "top secret")

	again, err := alice.Resources().Get(ctx, res.ID())
	require.NoError(t, err)
	plain, err := again.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(plain))

	_, err = bob.Resources().Get(ctx, res.ID())
	require.ErrorIs(t, err, identity.ErrNotMember)

	err = bob.Resources().ExtendSharingGroup(ctx, res.ID(), []string{"bob"})
	require.ErrorIs(t, err, identity.ErrNotMember)

	require.NoError(t, alice.Resources().ExtendSharingGroup(ctx, res.ID(), []string{"BOB"}))
	require.NoError(t, alice.Resources().ExtendSharingGroup(ctx, res.ID(), []string{"bob"}))

	shared, err := bob.Resources().Get(ctx, res.ID())
	require.NoError(t, err)
	plain, err = shared.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(plain))

	_, err = alice.Resources().Get(ctx, "nope")
	require.ErrorIs(t, err, identity.ErrUnknownResource)

	_, err = again.Decrypt(ctx, append([]byte{}, ciphertext[:10]...))
	require.Error(t, err)
}

func TestKeyringPersists(t *testing.T) {
	ctx := context.Background()
	s, err := signer.Generate("notes@example.com")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keyring.db")

	open := func(pass string) (*identity.Service, error) {
		svc, err := identity.Open(identity.Config{Path: path, Passphrase: []byte(pass), Approver: identity.AutoApprove})
		if err == nil {
			svc.Trust(s.Requester(), s.PublicKey())
		}
		return svc, err
	}

	svc, err := open("hunter2")
	require.NoError(t, err)
	f := &fixture{path: path, signer: s, svc: svc}
	sess := f.login(t, "alice")
	res, err := sess.Resources().Create(ctx, core.ResourceKindNote, core.ResourceDescriptor{}, nil)
	require.NoError(t, err)
	ciphertext, err := res.Encrypt(ctx, []byte("kept"))
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	_, err = open("wrong")
	require.ErrorIs(t, err, identity.ErrBadPassphrase)

	svc, err = open("hunter2")
	require.NoError(t, err)
	defer svc.Close()
	f.svc = svc
	sess = f.login(t, "alice")

	loaded, err := sess.Resources().Get(ctx, res.ID())
	require.NoError(t, err)
	plain, err := loaded.Decrypt(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(plain))
	assert.Equal(t, 1, svc.State().(identity.ServiceState).Resources)
}
