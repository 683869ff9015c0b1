// Package lifecycle exposes the note store event stream as a lifecycle.Source
// so it can be supervised next to the other sources of an application.
package lifecycle

import (
	"context"
	"sync/atomic"

	"github.com/aretw0/introspection"
	"github.com/aretw0/lifecycle"

	"github.com/aretw0/sealnote/pkg/core"
)

// Source forwards committed store events as lifecycle events.
type Source struct {
	events <-chan core.Event
	types  map[core.EventType]bool
	out    chan lifecycle.Event

	forwarded atomic.Int64
	running   atomic.Bool
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// OnlyTypes restricts the source to the given event types.
func OnlyTypes(types ...core.EventType) SourceOption {
	return func(s *Source) {
		s.types = make(map[core.EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
}

// NewSource wraps a channel obtained from Service.Watch.
func NewSource(events <-chan core.Event, opts ...SourceOption) *Source {
	s := &Source{
		events: events,
		out:    make(chan lifecycle.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events implements lifecycle.Source.
func (s *Source) Events() <-chan lifecycle.Event {
	return s.out
}

// Start implements lifecycle.Source. The output closes when ctx is done or the
// store closes the watch channel.
func (s *Source) Start(ctx context.Context) error {
	s.running.Store(true)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer s.running.Store(false)
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				if s.types != nil && !s.types[e.Type] {
					continue
				}
				// core.Event satisfies lifecycle.Event through String().
				select {
				case s.out <- e:
					s.forwarded.Add(1)
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}

// SourceState exposes internal state for observability.
type SourceState struct {
	Running   bool  `json:"running"`
	Forwarded int64 `json:"forwarded"`
}

// State implements introspection.Introspectable.
func (s *Source) State() any {
	return SourceState{Running: s.running.Load(), Forwarded: s.forwarded.Load()}
}

// ComponentType implements introspection.Component.
func (s *Source) ComponentType() string {
	return "event-source"
}

var _ lifecycle.Source = (*Source)(nil)
var _ introspection.Introspectable = (*Source)(nil)
var _ introspection.Component = (*Source)(nil)
