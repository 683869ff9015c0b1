package identity

import (
	"github.com/aretw0/introspection"
	bolt "go.etcd.io/bbolt"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Path      string   `json:"path"`
	Trusted   []string `json:"trusted"`
	Pending   int      `json:"pending"`
	Sessions  int      `json:"sessions"`
	Resources int      `json:"resources"`
	Approver  bool     `json:"approver"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	trusted := make([]string, 0, len(s.trusted))
	for req := range s.trusted {
		trusted = append(trusted, req)
	}
	state := ServiceState{
		Path:     s.config.Path,
		Trusted:  trusted,
		Pending:  len(s.pending),
		Sessions: s.sessions,
		Approver: s.config.Approver != nil,
	}
	s.mu.RUnlock()

	s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(resourcesBucket); b != nil {
			state.Resources = b.Stats().KeyN
		}
		return nil
	})
	return state
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "identity"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
