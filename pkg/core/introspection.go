package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Login           string `json:"login"`
	ReadOnly        bool   `json:"read_only"`
	Watchers        int    `json:"watchers"`
	EventBufferSize int    `json:"event_buffer_size"`
	RepositoryType  string `json:"repository_type"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	repoType := "unknown"
	if s.db != nil && s.db.repo != nil {
		repoType = "repository"
		if comp, ok := s.db.repo.(introspection.Component); ok {
			repoType = comp.ComponentType()
		}
	}

	return ServiceState{
		Login:           s.session.Login(),
		ReadOnly:        s.readOnly,
		Watchers:        s.events.len(),
		EventBufferSize: s.events.buffer,
		RepositoryType:  repoType,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
