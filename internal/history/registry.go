// Package history selects the source used to rebuild a dedup index.
package history

import (
	"fmt"
	"sort"

	"ChannelManager/internal/domain"
	"ChannelManager/internal/ports"
)

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]ports.HistorySource
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]ports.HistorySource{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(source ports.HistorySource) {
	if r.sources == nil {
		r.sources = map[string]ports.HistorySource{}
	}
	r.sources[source.Name()] = source
}

// Resolve returns a source by name or an error listing the known ones.
func (r *Registry) Resolve(name string) (ports.HistorySource, error) {
	if source, ok := r.sources[name]; ok {
		return source, nil
	}
	return nil, fmt.Errorf("history source %q is not registered (available: %v): %w", name, r.Names(), domain.ErrInvalidInput)
}

// Names lists registered sources in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
