// Package fs implements the local database as a directory tree. Every record
// is one file: metadata records are YAML files under note-metadata/ and
// ciphertexts are .dpr files under note-content/. Commits are journaled so a
// crash never leaves an id in one table only.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/sealnote/pkg/core"
)

const (
	// DefaultSystemDir holds the lock, the journal and temp files.
	DefaultSystemDir = ".sealnote"

	metadataExt = ".yaml"
)

var tables = []string{core.TableMetadata, core.TableContent}

// ErrLocked is returned by Initialize when another owner holds the directory.
var ErrLocked = errors.New("database directory is locked by another owner")

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	SystemDir string // e.g. ".sealnote"
	ReadOnly  bool
	Logger    *slog.Logger
}

// Repository implements core.Repository on a directory.
type Repository struct {
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	lock   *flock.Flock
	ready  bool
	broken error

	commits int

	// crashAt, when set, is called at each commit stage. A non-nil return stops
	// the commit there as if the process had died.
	crashAt func(stage string) error
	// ioFault, when set, fails the named post-commit step ("apply" or "drop")
	// as an I/O error would, without stopping the commit.
	ioFault func(step string) error
}

// NewRepository creates a repository rooted at config.Path. No I/O happens
// until Initialize.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{config: config, logger: logger}
}

func (r *Repository) systemDir() string { return filepath.Join(r.config.Path, r.config.SystemDir) }

func (r *Repository) tempDir() string { return filepath.Join(r.systemDir(), "tmp") }

func (r *Repository) tableDir(table string) string { return filepath.Join(r.config.Path, table) }

// Initialize creates the directory layout, takes the single-owner lock and
// finishes or discards any commit interrupted by a crash.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return nil
	}

	if r.config.ReadOnly {
		if _, err := os.Stat(r.tableDir(core.TableMetadata)); err != nil {
			return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
		}
	} else {
		for _, dir := range []string{r.tableDir(core.TableMetadata), r.tableDir(core.TableContent), r.tempDir()} {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("%w: create %s: %w", core.ErrStorageUnavailable, dir, err)
			}
		}
	}

	lock := flock.New(filepath.Join(r.systemDir(), "lock"))
	var (
		locked bool
		err    error
	)
	if r.config.ReadOnly {
		locked, err = lock.TryRLock()
	} else {
		locked, err = lock.TryLock()
	}
	if err != nil {
		return fmt.Errorf("%w: lock %s: %w", core.ErrStorageUnavailable, r.config.Path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %w: %s", core.ErrStorageUnavailable, ErrLocked, r.config.Path)
	}

	if !r.config.ReadOnly {
		if err := r.recoverJournal(); err != nil {
			lock.Unlock()
			return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
		}
	}

	r.lock = lock
	r.ready = true
	r.broken = nil
	r.logger.Debug("fs repository opened", "path", r.config.Path)
	return nil
}

func (r *Repository) usable() error {
	if !r.ready {
		return errors.New("repository not initialized")
	}
	if r.broken != nil {
		return fmt.Errorf("repository needs recovery, reopen it: %w", r.broken)
	}
	return nil
}

func (r *Repository) crash(stage string) error {
	if r.crashAt == nil {
		return nil
	}
	return r.crashAt(stage)
}

func (r *Repository) fault(step string) error {
	if r.ioFault == nil {
		return nil
	}
	return r.ioFault(step)
}

// Update implements core.Repository.
//
// Commit protocol:
//  1. Stage every change in memory through fn.
//  2. Write new file contents to synced temp files.
//  3. Write the journal atomically. This is the commit point.
//  4. Rename temps into place and remove deleted files.
//  5. Drop the journal.
//
// A failure before step 3 leaves nothing behind and is returned. Once the
// journal is durable the change is committed and Update returns nil: a failed
// apply is logged, rolled forward on the next Initialize, and until then the
// repository refuses reads. A journal that cannot be dropped is logged and
// replayed harmlessly on the next Initialize.
func (r *Repository) Update(ctx context.Context, fn func(tx core.Transaction) error) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}

	tx := newTransaction()
	if err := fn(tx); err != nil {
		return err
	}
	ops := tx.seal()
	if len(ops) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usable(); err != nil {
		return err
	}

	j := journal{Ops: make([]journalOp, 0, len(ops))}
	var temps []string
	discard := func() {
		for _, tmp := range temps {
			os.Remove(tmp)
		}
	}

	for _, op := range ops {
		jop := journalOp{Table: op.table, ID: op.id, Delete: op.delete}
		if !op.delete {
			tmp, err := writeTemp(r.tempDir(), op.data, 0o600)
			if err != nil {
				discard()
				return fmt.Errorf("stage %s/%s: %w", op.table, op.id, err)
			}
			temps = append(temps, tmp)
			jop.Temp = filepath.Base(tmp)
		}
		j.Ops = append(j.Ops, jop)
	}

	if err := r.crash("staged"); err != nil {
		discard()
		return err
	}

	if err := r.writeJournal(j); err != nil {
		discard()
		return fmt.Errorf("write journal: %w", err)
	}

	if err := r.crash("journaled"); err != nil {
		r.broken = err
		return err
	}

	// Committed from here on.
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = r.fault("apply"); err == nil {
			err = r.apply(j)
		}
		if err == nil {
			break
		}
	}
	if err != nil {
		r.broken = err
		r.commits++
		r.logger.Warn("fs commit left for recovery", "path", r.config.Path, "error", err)
		return nil
	}

	if err := r.crash("applied"); err != nil {
		r.broken = err
		return err
	}

	if err = r.fault("drop"); err == nil {
		err = r.dropJournal()
	}
	if err != nil {
		r.logger.Warn("fs journal not dropped", "path", r.config.Path, "error", err)
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

	dir := r.tableDir(core.TableMetadata)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var recs []core.Record
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := idFromFile(e.Name(), metadataExt)
		if !ok {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var rec core.Record
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		rec.ID = id
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

	data, err := os.ReadFile(filepath.Join(r.tableDir(core.TableContent), fileName(core.TableContent, id)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Close releases the directory lock.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return nil
	}
	r.ready = false
	return r.lock.Unlock()
}
