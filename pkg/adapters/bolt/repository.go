// Package bolt implements the local database on a single bbolt file per
// login. The metadata and content tables are two buckets and every paired
// write is one bbolt read-write transaction.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	bolt "go.etcd.io/bbolt"

	"github.com/aretw0/sealnote/pkg/core"
)

const (
	// defaultTimeout is how long Open waits for the file lock held by another owner.
	defaultTimeout = 500 * time.Millisecond

	// latestSchemaVersion is the most recent layout of the file. It is how the
	// repository knows whether to upgrade the database structure or not.
	latestSchemaVersion = 0x02
)

// Buckets for storing data in the database.
var (
	metadataBucket = []byte(core.TableMetadata)
	contentBucket  = []byte(core.TableContent)
	metaBucket     = []byte("meta")

	// Version of the data store.
	versionKey = []byte("version")
)

// Config holds the configuration for the bbolt repository.
type Config struct {
	Path     string
	Timeout  time.Duration
	ReadOnly bool
	Logger   *slog.Logger
}

// Repository implements core.Repository on bbolt.
type Repository struct {
	config Config
	logger *slog.Logger

	mu      sync.RWMutex
	db      *bolt.DB
	version byte
}

// NewRepository creates a repository for the file at config.Path. No I/O
// happens until Initialize.
func NewRepository(config Config) *Repository {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{config: config, logger: logger}
}

// Initialize opens the file, creates both buckets if missing and upgrades
// older layouts.
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		return nil
	}

	if !r.config.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(r.config.Path), 0o700); err != nil {
			return fmt.Errorf("%w: create directory: %w", core.ErrStorageUnavailable, err)
		}
	}

	db, err := bolt.Open(r.config.Path, 0o600, &bolt.Options{
		Timeout:  r.config.Timeout,
		ReadOnly: r.config.ReadOnly,
	})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return fmt.Errorf("%w: %s is in use by another store", core.ErrStorageUnavailable, r.config.Path)
		}
		return fmt.Errorf("%w: open %s: %w", core.ErrStorageUnavailable, r.config.Path, err)
	}

	if r.config.ReadOnly {
		err = db.View(func(tx *bolt.Tx) error {
			return r.checkLayout(tx)
		})
	} else {
		err = db.Update(func(tx *bolt.Tx) error {
			return r.createAndUpgrade(tx)
		})
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}

	r.db = db
	r.logger.Debug("bolt repository opened", "path", r.config.Path, "version", r.version)
	return nil
}

// createAndUpgrade creates missing buckets and brings older files up to the
// latest layout. Version 1 files stored content under a "notes" bucket keyed
// by id, with metadata kept alongside in a "notes-meta" bucket.
func (r *Repository) createAndUpgrade(tx *bolt.Tx) error {
	meta, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}

	version := byte(latestSchemaVersion)
	if v := meta.Get(versionKey); len(v) == 1 {
		version = v[0]
	} else if tx.Bucket([]byte("notes")) != nil {
		version = 0x01
	}

	if version > latestSchemaVersion {
		return fmt.Errorf("unrecognized version %d of data store", version)
	}

	if _, err := tx.CreateBucketIfNotExists(metadataBucket); err != nil {
		return err
	}
	if _, err := tx.CreateBucketIfNotExists(contentBucket); err != nil {
		return err
	}

	if version < 0x02 {
		if err := migrateV1(tx); err != nil {
			return fmt.Errorf("upgrade to version 2: %w", err)
		}
		r.logger.Info("bolt repository upgraded", "from", version, "to", latestSchemaVersion)
	}

	r.version = latestSchemaVersion
	return meta.Put(versionKey, []byte{latestSchemaVersion})
}

func migrateV1(tx *bolt.Tx) error {
	oldContent := tx.Bucket([]byte("notes"))
	oldMeta := tx.Bucket([]byte("notes-meta"))
	if oldContent == nil || oldMeta == nil {
		return nil
	}

	meta := tx.Bucket(metadataBucket)
	content := tx.Bucket(contentBucket)
	err := oldMeta.ForEach(func(k, v []byte) error {
		data := oldContent.Get(k)
		if data == nil {
			// Unpaired entries are dropped rather than carried into the new layout.
			return nil
		}
		if err := meta.Put(k, v); err != nil {
			return err
		}
		return content.Put(k, bytes.Clone(data))
	})
	if err != nil {
		return err
	}

	if err := tx.DeleteBucket([]byte("notes")); err != nil {
		return err
	}
	return tx.DeleteBucket([]byte("notes-meta"))
}

func (r *Repository) checkLayout(tx *bolt.Tx) error {
	if tx.Bucket(metadataBucket) == nil || tx.Bucket(contentBucket) == nil {
		return errors.New("database has no note tables")
	}
	if meta := tx.Bucket(metaBucket); meta != nil {
		if v := meta.Get(versionKey); len(v) == 1 {
			r.version = v[0]
		}
	}
	return nil
}

func (r *Repository) handle() (*bolt.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	return r.db, nil
}

// Update implements core.Repository with one read-write bbolt transaction.
func (r *Repository) Update(ctx context.Context, fn func(tx core.Transaction) error) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	db, err := r.handle()
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		return fn(&transaction{
			metadata: tx.Bucket(metadataBucket),
			content:  tx.Bucket(contentBucket),
		})
	})
}

// Metadata implements core.Repository.
func (r *Repository) Metadata(ctx context.Context) ([]core.Record, error) {
	db, err := r.handle()
	if err != nil {
		return nil, err
	}

	var recs []core.Record
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(metadataBucket).ForEach(func(k, v []byte) error {
			var rec core.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %s: %w", k, err)
			}
			rec.ID = string(k)
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Content implements core.Repository.
func (r *Repository) Content(ctx context.Context, id string) ([]byte, bool, error) {
	db, err := r.handle()
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(contentBucket).Get([]byte(id)); v != nil {
			// Values are only valid for the life of the transaction.
			data = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, data != nil, nil
}

// Close implements core.Repository.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

type transaction struct {
	metadata *bolt.Bucket
	content  *bolt.Bucket
}

func (t *transaction) PutMetadata(id string, rec core.Record) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return t.metadata.Put([]byte(id), v)
}

func (t *transaction) PutContent(id string, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	return t.content.Put([]byte(id), content)
}

func (t *transaction) DeleteMetadata(id string) error {
	return t.metadata.Delete([]byte(id))
}

func (t *transaction) DeleteContent(id string) error {
	return t.content.Delete([]byte(id))
}

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path     string `json:"path"`
	Version  int    `json:"version"`
	ReadOnly bool   `json:"read_only"`
	Open     bool   `json:"open"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RepositoryState{
		Path:     r.config.Path,
		Version:  int(r.version),
		ReadOnly: r.config.ReadOnly,
		Open:     r.db != nil,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "bolt-repository"
}

var _ core.Repository = (*Repository)(nil)
var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
