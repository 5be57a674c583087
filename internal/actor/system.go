package actor

import (
	"context"
	"fmt"
	"log/slog"
)

// System owns a fixed set of actors created at startup.
type System struct {
	actors []*Actor
	byName map[string]*Actor
}

// NewSystem registers actors. Names must be unique.
func NewSystem(actors ...*Actor) (*System, error) {
	s := &System{byName: make(map[string]*Actor, len(actors))}
	for _, a := range actors {
		if _, dup := s.byName[a.name]; dup {
			return nil, fmt.Errorf("duplicate actor name %q", a.name)
		}
		s.byName[a.name] = a
		s.actors = append(s.actors, a)
	}
	return s, nil
}

// Start launches every actor that was not created with WithManualStart.
func (s *System) Start(ctx context.Context) {
	for _, a := range s.actors {
		if a.manual {
			continue
		}
		a.Start(ctx)
	}
	slog.Info("actor system started", "actors", len(s.actors))
}

// Wait blocks until every started actor has exited.
func (s *System) Wait() {
	for _, a := range s.actors {
		if a.Started() {
			<-a.Done()
		}
	}
}

// Actor returns the actor with the given name, or nil.
func (s *System) Actor(name string) *Actor {
	return s.byName[name]
}

// Stats returns counters for all actors in registration order.
func (s *System) Stats() []Stats {
	out := make([]Stats, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a.Stats())
	}
	return out
}
