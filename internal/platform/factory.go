package platform

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/aretw0/sealnote/pkg/adapters/bolt"
	"github.com/aretw0/sealnote/pkg/adapters/fs"
	"github.com/aretw0/sealnote/pkg/adapters/memory"
	"github.com/aretw0/sealnote/pkg/adapters/sqlite"
	"github.com/aretw0/sealnote/pkg/core"
)

// Storage engine names accepted by WithAdapter.
const (
	AdapterBolt   = "bolt"
	AdapterSQLite = "sqlite"
	AdapterFS     = "fs"
	AdapterMemory = "memory"
)

// Adapters lists every engine name in a stable order.
var Adapters = []string{AdapterBolt, AdapterSQLite, AdapterFS, AdapterMemory}

// DatabasePath returns where the engine keeps the database of login under
// root. The login is escaped so it is always a single path segment.
//
//	bolt:   <root>/<login>.db
//	sqlite: <root>/<login>.sqlite
//	fs:     <root>/<login>/
func DatabasePath(root, adapter, login string) (string, error) {
	if strings.TrimSpace(login) == "" {
		return "", fmt.Errorf("%w: empty login", core.ErrStorageUnavailable)
	}
	name := url.PathEscape(login)
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid login %q", core.ErrStorageUnavailable, login)
	}

	switch adapter {
	case AdapterBolt:
		return filepath.Join(root, name+".db"), nil
	case AdapterSQLite:
		return filepath.Join(root, name+".sqlite"), nil
	case AdapterFS:
		return filepath.Join(root, name), nil
	case AdapterMemory:
		return "", nil
	default:
		return "", fmt.Errorf("unknown adapter: %s", adapter)
	}
}

// NewRepository builds the uninitialized engine holding the notes of login.
func NewRepository(root, login string, opts ...Option) (core.Repository, error) {
	return newRepository(root, login, buildOptions(opts))
}

func newRepository(root, login string, o *options) (core.Repository, error) {
	if o.repository != nil {
		return o.repository, nil
	}

	path, err := DatabasePath(root, o.adapter, login)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger != nil {
		logger = logger.With("adapter", o.adapter)
	}

	switch o.adapter {
	case AdapterBolt:
		return bolt.NewRepository(bolt.Config{
			Path:     path,
			Timeout:  o.lockTimeout,
			ReadOnly: o.readOnly,
			Logger:   logger,
		}), nil
	case AdapterSQLite:
		return sqlite.NewRepository(sqlite.Config{
			Path:     path,
			ReadOnly: o.readOnly,
			Logger:   logger,
		}), nil
	case AdapterFS:
		return fs.NewRepository(fs.Config{
			Path:      path,
			SystemDir: o.systemDir,
			ReadOnly:  o.readOnly,
			Logger:    logger,
		}), nil
	default:
		return memory.NewRepository(), nil
	}
}
