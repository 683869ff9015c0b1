package identity

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/aretw0/lifecycle"
	"github.com/google/uuid"

	"github.com/aretw0/sealnote/pkg/core"
	"github.com/aretw0/sealnote/pkg/signer"
)

func (s *Service) verify(login string, pub []byte, a core.Assertion) error {
	s.mu.RLock()
	key, ok := s.trusted[a.Requester]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUntrustedRequester, a.Requester)
	}
	if err := signer.Verify(key, core.SignRequest{Login: login, PublicKey: pub}, a); err != nil {
		return fmt.Errorf("%w: %w", ErrUntrustedRequester, err)
	}
	return nil
}

// accessRequest implements core.AccessRequest.
type accessRequest struct {
	svc       *Service
	id        string
	login     string
	requester string
	publicKey ed25519.PublicKey

	once     sync.Once
	resolved sync.Once
	done     chan struct{}

	granted bool
	err     error
}

func newAccessRequest(svc *Service, login string) (*accessRequest, error) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &accessRequest{
		svc:       svc,
		id:        uuid.NewString(),
		login:     login,
		publicKey: pub,
		done:      make(chan struct{}),
	}, nil
}

func (r *accessRequest) info() ApprovalRequest {
	sum := sha256.Sum256(r.publicKey)
	return ApprovalRequest{
		ID:          r.id,
		Login:       r.login,
		Requester:   r.requester,
		Fingerprint: hex.EncodeToString(sum[:8]),
	}
}

// OpenResolver implements core.AccessRequest. Only the first call starts the
// approval flow.
func (r *accessRequest) OpenResolver(ctx context.Context) error {
	approve := r.svc.config.Approver
	if approve == nil {
		return nil
	}

	r.once.Do(func() {
		lifecycle.Go(ctx, func(ctx context.Context) error {
			granted, err := approve(ctx, r.info())
			r.resolve(granted, err)
			return err
		}, lifecycle.WithErrorHandler(func(err error) {
			r.svc.logger.Error("approval flow failed", "id", r.id, "error", err)
			r.resolve(false, fmt.Errorf("approval flow: %w", err))
		}))
	})
	return nil
}

func (r *accessRequest) resolve(granted bool, err error) {
	r.resolved.Do(func() {
		r.granted = granted
		r.err = err
		if err == nil && !granted {
			r.err = ErrAccessDenied
		}
		r.svc.finish(r, r.err == nil)
		close(r.done)
	})
}

// WaitSession implements core.AccessRequest.
func (r *accessRequest) WaitSession(ctx context.Context) (core.Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
	}
	if r.err != nil {
		return nil, r.err
	}
	r.svc.logger.Info("delegated access granted", "login", r.login, "requester", r.requester)
	return &session{svc: r.svc, login: r.login}, nil
}

var _ core.AccessRequest = (*accessRequest)(nil)
