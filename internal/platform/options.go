package platform

import (
	"log/slog"
	"time"

	"github.com/aretw0/sealnote/pkg/core"
)

// DefaultApprovalTimeout bounds how long Login waits for the user to approve
// a delegated access request.
const DefaultApprovalTimeout = 5 * time.Minute

// options holds the internal configuration for the note store.
type options struct {
	repository      core.Repository
	logger          *slog.Logger
	adapter         string
	systemDir       string
	readOnly        bool
	devSafety       bool
	forceTemp       bool
	eventBuffer     int
	lockTimeout     time.Duration
	approvalTimeout time.Duration
	clock           func() time.Time
}

// Option defines a functional option for configuring the note store.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter:         AdapterBolt,
		devSafety:       true,
		approvalTimeout: DefaultApprovalTimeout,
	}
}

func buildOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger for the store and its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRepository injects a storage engine (e.g. memory, a mock).
// If provided, the adapter selection and path resolution are skipped.
func WithRepository(repo core.Repository) Option {
	return func(o *options) {
		o.repository = repo
	}
}

// WithAdapter selects the storage engine by name: "bolt" (default),
// "sqlite", "fs" or "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithSystemDir sets the hidden directory of the fs engine. Defaults to ".sealnote".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithEventBuffer sets the per-watcher event buffer. Zero means default (100).
func WithEventBuffer(size int) Option {
	return func(o *options) {
		o.eventBuffer = size
	}
}

// WithLockTimeout sets how long the bolt engine waits for a file held by
// another owner before reporting it unavailable.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		o.lockTimeout = d
	}
}

// WithApprovalTimeout bounds the wait for delegated access approval.
// Zero or negative waits as long as the context allows.
func WithApprovalTimeout(d time.Duration) Option {
	return func(o *options) {
		o.approvalTimeout = d
	}
}

// WithClock overrides the clock used for note ids and creation times.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithForceTemp forces the data root into the dev sandbox (useful for testing).
func WithForceTemp(force bool) Option {
	return func(o *options) {
		o.forceTemp = force
	}
}

// WithReadOnly enables read-only mode.
// In this mode:
// 1. Save, SaveEncrypted, Delete and Import return ErrReadOnly (ExtendSharing does not write locally).
// 2. The engine opens its file without creating or upgrading it.
// 3. Dev Safety (go run temp dir) is BYPASSED (uses the real path).
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or `go test`.
// By default (true), the data root is re-rooted into a temporary directory so
// development runs never touch real notes.
//
// CAUTION: Only disable this if you are sure your code is safe.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}
