package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/jukebox/pkg/resolve"
)

// ErrSourceNotRegistered is returned by [Registry.CreateSource] when no
// factory has been registered under the requested source name.
var ErrSourceNotRegistered = errors.New("config: resolver source not registered")

// SourceFactory builds a resolver for one entry of resolver.sources.
type SourceFactory func(SourceEntry) (resolve.Resolver, error)

// Registry maps resolver source names to their constructors.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]SourceFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]SourceFactory)}
}

// RegisterSource registers a factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = factory
}

// CreateSource instantiates the resolver registered under entry.Name.
func (r *Registry) CreateSource(entry SourceEntry) (resolve.Resolver, error) {
	r.mu.RLock()
	factory, ok := r.sources[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSourceNotRegistered, entry.Name)
	}
	res, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create source %s: %w", entry.Label(), err)
	}
	return res, nil
}
