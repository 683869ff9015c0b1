package sealnote

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/sealnote/internal/platform"
	"github.com/aretw0/sealnote/pkg/core"
)

// --- Types ---

// Service is the note store.
type Service = core.Service

// Note is a single encrypted note.
type Note = core.Note

// Metadata holds the descriptive fields of a note.
type Metadata = core.Metadata

// NewNote creates a draft note holding content.
func NewNote(content string, metadata Metadata) *Note {
	return core.NewNote(content, metadata)
}

// ErrApprovalTimeout is returned by Login when access was not approved in time.
var ErrApprovalTimeout = platform.ErrApprovalTimeout

// --- Configuration ---

// Option defines a functional option for configuring the store.
type Option = platform.Option

// WithLogger sets the logger for the store and its engine.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRepository allows injecting a custom storage engine.
func WithRepository(repo core.Repository) Option {
	return platform.WithRepository(repo)
}

// WithAdapter selects the storage engine by name ("bolt", "sqlite", "fs", "memory").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithSystemDir sets the hidden directory of the fs engine (e.g. ".sealnote").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithEventBuffer sets the size of the per-watcher event buffer.
func WithEventBuffer(size int) Option {
	return platform.WithEventBuffer(size)
}

// WithReadOnly rejects every write to the store.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithDevSafety controls the temp sandbox used under `go run` and `go test`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithForceTemp forces the use of the temp sandbox (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithApprovalTimeout bounds the wait for delegated access approval.
func WithApprovalTimeout(d time.Duration) Option {
	return platform.WithApprovalTimeout(d)
}

// WithLockTimeout sets how long the bolt engine waits on a file held elsewhere.
func WithLockTimeout(d time.Duration) Option {
	return platform.WithLockTimeout(d)
}

// WithClock overrides the clock used for note ids and creation times.
func WithClock(now func() time.Time) Option {
	return platform.WithClock(now)
}

// --- Factory ---

// New opens the note store of an already established session.
func New(ctx context.Context, root string, session core.Session, opts ...Option) (*Service, error) {
	return platform.Open(ctx, root, session, opts...)
}

// Login performs delegated access for login and opens its note store.
func Login(ctx context.Context, root string, authority core.Authority, login string, sign core.Signer, opts ...Option) (*Service, error) {
	return platform.Login(ctx, root, authority, login, sign, opts...)
}

// Authenticate performs delegated access only and returns the session.
func Authenticate(ctx context.Context, authority core.Authority, login string, sign core.Signer, opts ...Option) (core.Session, error) {
	return platform.Authenticate(ctx, authority, login, sign, opts...)
}

// --- Safety & Utils ---

// ResolveRoot determines the actual data root based on safety rules.
func ResolveRoot(userPath string, forceTemp bool) string {
	return platform.ResolveRoot(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// DefaultRoot returns ~/.sealnote.
func DefaultRoot() (string, error) {
	return platform.DefaultRoot()
}
