// Package memory provides an in-memory storage engine for the local database.
// It is used by tests and examples and supports injecting commit failures.
package memory

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/sealnote/pkg/core"
)

// ErrInjected is returned by commits that were failed through FailNextCommits.
var ErrInjected = errors.New("injected commit failure")

// Repository implements core.Repository with two maps.
type Repository struct {
	mu       sync.RWMutex
	metadata map[string]core.Record
	content  map[string][]byte
	ready    bool
	closed   bool

	failCommits int
	commits     int

	// BeforeCommit, when set, is called with the staged ids right before a
	// commit is applied. Returning an error aborts the commit.
	BeforeCommit func(ids []string) error
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		metadata: make(map[string]core.Record),
		content:  make(map[string][]byte),
	}
}

// Initialize implements core.Repository.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("repository closed")
	}
	r.ready = true
	return nil
}

// FailNextCommits makes the next n commits fail with ErrInjected.
func (r *Repository) FailNextCommits(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failCommits = n
}

// Update implements core.Repository. Changes are staged and applied under the
// write lock only if fn succeeds.
func (r *Repository) Update(ctx context.Context, fn func(tx core.Transaction) error) error {
	tx := newTransaction()
	if err := fn(tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(); err != nil {
		return err
	}

	if r.failCommits > 0 {
		r.failCommits--
		return ErrInjected
	}
	if r.BeforeCommit != nil {
		if err := r.BeforeCommit(tx.ids()); err != nil {
			return err
		}
	}

	for _, op := range tx.ops {
		switch {
		case op.table == core.TableMetadata && op.delete:
			delete(r.metadata, op.id)
		case op.table == core.TableMetadata:
			r.metadata[op.id] = op.rec
		case op.delete:
			delete(r.content, op.id)
		default:
			r.content[op.id] = op.data
		}
	}
	r.commits++
	return nil
}

// Metadata implements core.Repository.
func (r *Repository) Metadata(ctx context.Context) ([]core.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.usable(); err != nil {
		return nil, err
	}

	recs := make([]core.Record, 0, len(r.metadata))
	for _, rec := range r.metadata {
		recs = append(recs, rec)
	}
	return recs, nil
}

// Content implements core.Repository.
func (r *Repository) Content(ctx context.Context, id string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.usable(); err != nil {
		return nil, false, err
	}

	data, ok := r.content[id]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(data), true, nil
}

// ContentIDs returns the ids present in the content table.
func (r *Repository) ContentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.content))
	for id := range r.content {
		ids = append(ids, id)
	}
	return ids
}

// Close implements core.Repository.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Repository) usable() error {
	if r.closed {
		return errors.New("repository closed")
	}
	if !r.ready {
		return errors.New("repository not initialized")
	}
	return nil
}

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Notes   int `json:"notes"`
	Commits int `json:"commits"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RepositoryState{Notes: len(r.metadata), Commits: r.commits}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "memory-repository"
}

var _ core.Repository = (*Repository)(nil)
var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)

type op struct {
	table  string
	id     string
	rec    core.Record
	data   []byte
	delete bool
}

// transaction stages writes in order until the repository applies them.
type transaction struct {
	ops []op
}

func newTransaction() *transaction {
	return &transaction{}
}

func (t *transaction) PutMetadata(id string, rec core.Record) error {
	t.ops = append(t.ops, op{table: core.TableMetadata, id: id, rec: rec})
	return nil
}

func (t *transaction) PutContent(id string, content []byte) error {
	t.ops = append(t.ops, op{table: core.TableContent, id: id, data: bytes.Clone(content)})
	return nil
}

func (t *transaction) DeleteMetadata(id string) error {
	t.ops = append(t.ops, op{table: core.TableMetadata, id: id, delete: true})
	return nil
}

func (t *transaction) DeleteContent(id string) error {
	t.ops = append(t.ops, op{table: core.TableContent, id: id, delete: true})
	return nil
}

func (t *transaction) ids() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, o := range t.ops {
		if !seen[o.id] {
			seen[o.id] = true
			ids = append(ids, o.id)
		}
	}
	return ids
}
