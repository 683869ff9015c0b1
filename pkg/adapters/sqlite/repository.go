// Package sqlite implements the local database on SQLite. Each login gets
// its own file holding the "note-metadata" and "note-content" tables and every
// paired write is one SQL transaction.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aretw0/sealnote/pkg/core"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (tables without updated_at)
// 1 - Added updated_at to note-metadata, dropped unpaired rows
const currentSchemaVersion = 1

// Config holds the configuration for the SQLite repository.
type Config struct {
	Path     string
	ReadOnly bool
	// BusyTimeout bounds how long a write waits on a lock held by another
	// connection. Zero means 5 seconds.
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// Repository implements core.Repository on SQLite.
type Repository struct {
	config Config
	logger *slog.Logger

	mu      sync.RWMutex
	db      *sql.DB
	version int
}

// NewRepository creates a repository for the file at config.Path. No I/O
// happens until Initialize.
func NewRepository(config Config) *Repository {
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Repository{config: config, logger: logger}
}

// dsn builds a URI filename. SQLite decodes %XX in the path, so the path is
// percent-encoded to keep escaped names such as "..%2Fbob" literal.
func (r *Repository) dsn() (string, error) {
	abs, err := filepath.Abs(r.config.Path)
	if err != nil {
		return "", err
	}
	path := filepath.ToSlash(abs)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	q := url.Values{}
	if r.config.ReadOnly {
		q.Set("mode", "ro")
	}
	u := &url.URL{Scheme: "file", Path: path, RawQuery: q.Encode()}
	return u.String(), nil
}

// Initialize opens the database, applies pragmas, and creates or migrates
// the schema.
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

	dsn, err := r.dsn()
	if err != nil {
		return fmt.Errorf("%w: resolve path: %w", core.ErrStorageUnavailable, err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("%w: open database: %w", core.ErrStorageUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("%w: connect to database: %w", core.ErrStorageUnavailable, err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := r.applyPragmas(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("%w: apply pragmas: %w", core.ErrStorageUnavailable, err)
	}

	if r.config.ReadOnly {
		err = db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&r.version)
	} else {
		err = r.applySchema(ctx, db)
	}
	if err != nil {
		db.Close()
		return fmt.Errorf("%w: apply schema: %w", core.ErrStorageUnavailable, err)
	}

	r.db = db
	r.logger.Debug("sqlite repository opened", "path", r.config.Path, "version", r.version)
	return nil
}

func (r *Repository) applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", r.config.BusyTimeout.Milliseconds()),
	}
	if !r.config.ReadOnly {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (r *Repository) applySchema(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("unrecognized schema version %d", version)
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
		r.logger.Info("sqlite repository upgraded", "from", version, "to", 1)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	r.version = currentSchemaVersion
	return nil
}

// migrateToV1 upgrades databases created before updated_at existed. Fresh
// files have no tables yet and get the column from schema.sql.
func migrateToV1(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'note-metadata'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	if n == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`ALTER TABLE "note-metadata" ADD COLUMN updated_at INTEGER NOT NULL DEFAULT 0`,
		`DELETE FROM "note-metadata" WHERE id NOT IN (SELECT id FROM "note-content")`,
		`DELETE FROM "note-content" WHERE id NOT IN (SELECT id FROM "note-metadata")`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return tx.Commit()
}

func (r *Repository) handle() (*sql.DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, errors.New("repository not initialized")
	}
	return r.db, nil
}

// Update implements core.Repository with a single SQL transaction. The
// context is honoured until the transaction begins; a commit in flight is not
// abandoned.
func (r *Repository) Update(ctx context.Context, fn func(tx core.Transaction) error) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	db, err := r.handle()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&transaction{ctx: ctx, tx: sqlTx, now: time.Now().UnixMilli()}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Metadata implements core.Repository.
func (r *Repository) Metadata(ctx context.Context) ([]core.Record, error) {
	db, err := r.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT id, record FROM "note-metadata"`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []core.Record
	for rows.Next() {
		var (
			id  string
			raw string
			rec core.Record
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", id, err)
		}
		rec.ID = id
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Content implements core.Repository.
func (r *Repository) Content(ctx context.Context, id string) ([]byte, bool, error) {
	db, err := r.handle()
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = db.QueryRowContext(ctx, `SELECT content FROM "note-content" WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
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
	ctx context.Context
	tx  *sql.Tx
	now int64
}

func (t *transaction) PutMetadata(id string, rec core.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO "note-metadata" (id, record, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		id, string(raw), t.now)
	return err
}

func (t *transaction) PutContent(id string, content []byte) error {
	if content == nil {
		content = []byte{}
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO "note-content" (id, content) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content`,
		id, content)
	return err
}

func (t *transaction) DeleteMetadata(id string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM "note-metadata" WHERE id = ?`, id)
	return err
}

func (t *transaction) DeleteContent(id string) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM "note-content" WHERE id = ?`, id)
	return err
}

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
	ReadOnly      bool   `json:"read_only"`
	Open          bool   `json:"open"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RepositoryState{
		Path:          r.config.Path,
		SchemaVersion: r.version,
		ReadOnly:      r.config.ReadOnly,
		Open:          r.db != nil,
	}
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "sqlite-repository"
}

var _ core.Repository = (*Repository)(nil)
var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
