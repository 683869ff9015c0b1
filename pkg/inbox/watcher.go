// Package inbox watches a directory for exported note files and imports every
// one that is dropped into it.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/sealnote/pkg/core"
)

const (
	// DefaultPattern matches exported notes at any depth.
	DefaultPattern = "**/*" + core.ExportExtension

	defaultDebounce = 100 * time.Millisecond
)

// Importer admits an exported note. *core.Service satisfies it.
type Importer interface {
	Import(ctx context.Context, filename string, r io.Reader) (*core.Note, error)
}

// Result reports the outcome of one import.
type Result struct {
	Path string
	Note *core.Note
	Err  error
}

// Config holds the configuration for the inbox watcher.
type Config struct {
	Dir string

	// Pattern is a doublestar glob matched against paths relative to Dir.
	Pattern string

	// Debounce is how long a file must stay quiet before it is imported.
	Debounce time.Duration

	// Remove deletes a file once it was imported.
	Remove bool

	// ScanExisting imports matching files already present at start.
	ScanExisting bool

	// OnResult, when set, is called after every import attempt.
	OnResult func(Result)

	Logger *slog.Logger
}

// Stats counts import outcomes.
type Stats struct {
	Imported int64 `json:"imported"`
	Failed   int64 `json:"failed"`
	Pending  int   `json:"pending"`
}

// Watcher is a lifecycle worker importing note files from a directory.
type Watcher struct {
	*worker.BaseWorker
	config    Config
	importer  Importer
	logger    *slog.Logger
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc

	imported atomic.Int64
	failed   atomic.Int64
}

// New creates a watcher feeding importer. It does not touch the disk until Start.
func New(importer Importer, config Config) (*Watcher, error) {
	if importer == nil {
		return nil, errors.New("inbox: no importer")
	}
	if config.Pattern == "" {
		config.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(config.Pattern) {
		return nil, fmt.Errorf("inbox: invalid pattern %q", config.Pattern)
	}
	if config.Debounce <= 0 {
		config.Debounce = defaultDebounce
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		BaseWorker: worker.NewBaseWorker("inbox"),
		config:     config,
		importer:   importer,
		logger:     logger,
	}, nil
}

// Start implements worker.Worker.
func (w *Watcher) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("inbox already started (status: %s)", status)
	}

	info, err := os.Stat(w.config.Dir)
	if err != nil {
		return fmt.Errorf("inbox directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inbox path is not a directory: %s", w.config.Dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.recursiveAdd(watcher, w.config.Dir); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(w.config.Debounce)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if w.config.ScanExisting {
		w.scan(runCtx)
	}

	w.SetStatus(worker.StatusRunning)
	w.logger.Info("inbox watching", "dir", w.config.Dir, "pattern", w.config.Pattern)
	return w.StartFunc(runCtx, w.run)
}

// Stop implements worker.Worker.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	return w.BaseWorker.Stop(ctx)
}

// State implements worker.Worker.
func (w *Watcher) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"dir":               w.config.Dir,
		}
	})
}

// Stats returns the import counters.
func (w *Watcher) Stats() Stats {
	s := Stats{Imported: w.imported.Load(), Failed: w.failed.Load()}
	if w.debouncer != nil {
		s.Pending = w.debouncer.pending()
	}
	return s
}

func (w *Watcher) recursiveAdd(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.config.Dir, path)
	if err != nil {
		return false
	}
	ok, _ := doublestar.Match(w.config.Pattern, filepath.ToSlash(rel))
	return ok
}

func (w *Watcher) scan(ctx context.Context) {
	_ = filepath.WalkDir(w.config.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.matches(path) {
			return nil
		}
		w.importFile(ctx, path)
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) error {
	defer w.watcher.Close()

	err := w.loop(ctx)

	// Wait for in-flight imports so none of them runs after Stop returns.
	w.debouncer.stopAndWait(5 * time.Second)
	return err
}

func (w *Watcher) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("fsnotify error", "error", wErr)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.recursiveAdd(w.watcher, event.Name); err != nil {
				w.logger.Warn("inbox could not watch new directory", "dir", event.Name, "error", err)
			}
			// Files may have landed before the directory was watched.
			w.scanDir(ctx, event.Name)
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}
	path := event.Name
	w.debouncer.add(path, func() { w.importFile(ctx, path) })
}

func (w *Watcher) scanDir(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !w.matches(path) {
			return nil
		}
		w.debouncer.add(path, func() { w.importFile(ctx, path) })
		return nil
	})
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	res := Result{Path: path}
	res.Note, res.Err = w.open(ctx, path)
	if res.Err != nil {
		w.failed.Add(1)
		w.logger.Warn("inbox import failed", "path", path, "error", res.Err)
	} else {
		w.imported.Add(1)
		w.logger.Info("inbox imported note", "path", path, "id", res.Note.ID)
		if w.config.Remove {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				w.logger.Warn("inbox could not remove imported file", "path", path, "error", err)
			}
		}
	}

	if w.config.OnResult != nil {
		w.config.OnResult(res)
	}
}

func (w *Watcher) open(ctx context.Context, path string) (*core.Note, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return w.importer.Import(ctx, path, f)
}
