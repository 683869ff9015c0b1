package fs

import (
	"github.com/aretw0/introspection"

	"github.com/aretw0/sealnote/pkg/core"
)

// RepositoryState exposes internal state for observability.
type RepositoryState struct {
	Path      string `json:"path"`
	SystemDir string `json:"system_dir"`
	ReadOnly  bool   `json:"read_only"`
	Open      bool   `json:"open"`
	Commits   int    `json:"commits"`
	Broken    string `json:"broken,omitempty"`
}

// State implements introspection.Introspectable.
func (r *Repository) State() any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := RepositoryState{
		Path:      r.config.Path,
		SystemDir: r.config.SystemDir,
		ReadOnly:  r.config.ReadOnly,
		Open:      r.ready,
		Commits:   r.commits,
	}
	if r.broken != nil {
		state.Broken = r.broken.Error()
	}
	return state
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "fs-repository"
}

var _ core.Repository = (*Repository)(nil)
var _ introspection.Introspectable = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)
