package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/sealnote/pkg/core"
)

// ErrApprovalTimeout is returned by Login when the user did not approve the
// delegated access request within the approval timeout.
var ErrApprovalTimeout = errors.New("access approval timed out")

// DataRoot applies the dev safety rules to root and returns the directory
// the store will actually use.
func DataRoot(root string, opts ...Option) string {
	return dataRoot(root, buildOptions(opts))
}

func dataRoot(root string, o *options) string {
	// Read-only stores cannot damage real data.
	bypass := o.readOnly || !o.devSafety
	resolved := ResolveRoot(root, o.forceTemp || (IsDevRun() && !bypass))

	if IsDevRun() && o.logger != nil {
		switch {
		case o.readOnly:
			o.logger.Debug("running in READ-ONLY mode (bypassing dev sandbox)", "path", resolved)
		case bypass:
			o.logger.Warn("running in UNSAFE mode (bypassing dev sandbox)", "path", resolved)
		default:
			o.logger.Debug("running in SAFE mode (dev sandbox enabled)", "path", resolved)
		}
	}
	return resolved
}

// Open opens the local database of session's login under root and returns
// the note store bound to it. The database identity is the login the session
// resolved to, never the one that was requested.
func Open(ctx context.Context, root string, session core.Session, opts ...Option) (*core.Service, error) {
	o := buildOptions(opts)

	repo, err := newRepository(dataRoot(root, o), session.Login(), o)
	if err != nil {
		return nil, err
	}

	db, err := core.Open(ctx, repo)
	if err != nil {
		return nil, err
	}

	return core.NewService(db, session,
		core.WithLogger(o.logger),
		core.WithClock(o.clock),
		core.WithReadOnly(o.readOnly),
		core.WithEventBuffer(o.eventBuffer),
	), nil
}

// Authenticate runs the delegated access handshake for login: the request is
// signed, the approval flow is opened and the session awaited, bounded by
// the approval timeout.
func Authenticate(ctx context.Context, authority core.Authority, login string, sign core.Signer, opts ...Option) (core.Session, error) {
	o := buildOptions(opts)

	req, err := authority.RequestDelegatedAccess(ctx, login, sign)
	if err != nil {
		return nil, fmt.Errorf("request access for %s: %w", login, err)
	}

	waitCtx := ctx
	if o.approvalTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.approvalTimeout)
		defer cancel()
	}

	if err := req.OpenResolver(waitCtx); err != nil {
		return nil, fmt.Errorf("open resolver: %w", err)
	}

	session, err := req.WaitSession(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrApprovalTimeout, o.approvalTimeout)
		}
		return nil, fmt.Errorf("wait session: %w", err)
	}

	if o.logger != nil {
		o.logger.Info("session established", "requested", login, "login", session.Login())
	}
	return session, nil
}

// Login authenticates login against authority and opens its note store.
func Login(ctx context.Context, root string, authority core.Authority, login string, sign core.Signer, opts ...Option) (*core.Service, error) {
	session, err := Authenticate(ctx, authority, login, sign, opts...)
	if err != nil {
		return nil, err
	}
	return Open(ctx, root, session, opts...)
}
