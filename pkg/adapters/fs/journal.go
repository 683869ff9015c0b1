package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const journalVersion = 1

// journal lists the renames and removals of one commit. Once it is on disk the
// commit is decided and is rolled forward, either right away or on the next
// Initialize.
type journal struct {
	Version int         `yaml:"version"`
	Ops     []journalOp `yaml:"ops"`
}

type journalOp struct {
	Table  string `yaml:"table"`
	ID     string `yaml:"id"`
	Temp   string `yaml:"temp,omitempty"`
	Delete bool   `yaml:"delete,omitempty"`
}

func (r *Repository) journalPath() string {
	return filepath.Join(r.systemDir(), "journal.yaml")
}

func (r *Repository) writeJournal(j journal) error {
	j.Version = journalVersion
	data, err := yaml.Marshal(j)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.journalPath(), data, 0o600); err != nil {
		return err
	}
	syncDir(r.systemDir())
	return nil
}

func (r *Repository) readJournal() (journal, bool, error) {
	data, err := os.ReadFile(r.journalPath())
	if errors.Is(err, os.ErrNotExist) {
		return journal{}, false, nil
	}
	if err != nil {
		return journal{}, false, err
	}

	var j journal
	if err := yaml.Unmarshal(data, &j); err != nil {
		return journal{}, false, fmt.Errorf("decode journal: %w", err)
	}
	if j.Version != journalVersion {
		return journal{}, false, fmt.Errorf("unrecognized journal version %d", j.Version)
	}
	return j, true, nil
}

// apply performs the journaled operations. It is idempotent: a temp file that
// is already gone was renamed by an earlier attempt.
func (r *Repository) apply(j journal) error {
	for _, op := range j.Ops {
		target := filepath.Join(r.tableDir(op.Table), fileName(op.Table, op.ID))
		if op.Delete {
			if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove %s/%s: %w", op.Table, op.ID, err)
			}
			continue
		}

		temp := filepath.Join(r.tempDir(), op.Temp)
		if err := os.Rename(temp, target); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				if _, statErr := os.Stat(target); statErr == nil {
					continue
				}
			}
			return fmt.Errorf("rename %s/%s: %w", op.Table, op.ID, err)
		}
	}

	for _, table := range tables {
		syncDir(r.tableDir(table))
	}
	return nil
}

func (r *Repository) dropJournal() error {
	if err := os.Remove(r.journalPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	syncDir(r.systemDir())
	return nil
}

// recoverJournal rolls a leftover journal forward and removes temp files of commits
// that never reached their commit point.
func (r *Repository) recoverJournal() error {
	j, ok, err := r.readJournal()
	if err != nil {
		return err
	}
	if ok {
		if err := r.apply(j); err != nil {
			return fmt.Errorf("roll forward: %w", err)
		}
		if err := r.dropJournal(); err != nil {
			return err
		}
		r.logger.Info("fs repository recovered interrupted commit", "path", r.config.Path, "ops", len(j.Ops))
	}

	swept := 0
	for _, dir := range []string{r.tempDir(), r.systemDir()} {
		n, err := sweepTemps(dir)
		if err != nil {
			return fmt.Errorf("sweep temp files: %w", err)
		}
		swept += n
	}
	if swept > 0 {
		r.logger.Debug("fs repository removed stray temp files", "count", swept)
	}
	return nil
}
