// Package ingest defines the event-producer boundary that sits in front
// of the EPS admission gate. It is deliberately schema-agnostic: a
// Source hands over opaque bytes, and what happens to them after the
// gate admits them is someone else's concern.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Source is an event producer. Implement this interface to add a new
// ingestion channel without touching the runner or the admission gate.
type Source interface {
	// Name returns the source's unique identifier.
	Name() string

	// Priority orders the source within the Registry (lower first). The
	// Runner drains all sources concurrently, so it sets no poll order.
	Priority() int

	// Next blocks until an event is available or ctx is done.
	Next(ctx context.Context) ([]byte, error)
}

// Info describes a registered source for API/metrics consumption.
type Info struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// Registry tracks the set of active sources, ordered by priority.
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	byName  map[string]Source
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sources: make([]Source, 0),
		byName:  make(map[string]Source),
		logger:  logger,
	}
}

// Register adds a source, re-sorting the registry by priority.
func (r *Registry) Register(source Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[source.Name()]; exists {
		return fmt.Errorf("ingest: source %q already registered", source.Name())
	}

	r.sources = append(r.sources, source)
	r.byName[source.Name()] = source
	sort.Slice(r.sources, func(i, j int) bool {
		return r.sources[i].Priority() < r.sources[j].Priority()
	})

	r.logger.Info("ingest source registered", "source", source.Name(), "priority", source.Priority())
	return nil
}

// Unregister removes a source by name; a no-op if it isn't registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byName, name)
	filtered := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		if s.Name() != name {
			filtered = append(filtered, s)
		}
	}
	r.sources = filtered
}

// Get returns a source by name.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// List returns the registered sources in priority order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(r.sources))
	for _, s := range r.sources {
		infos = append(infos, Info{Name: s.Name(), Priority: s.Priority()})
	}
	return infos
}

// All returns a snapshot of the registered sources, in priority order.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}
