// Package registry holds the static table of configured inference backends.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/swarmhub/swarmgate/internal/config"
)

var (
	ErrDuplicateBackend = errors.New("duplicate backend")
	ErrUnknownBackend   = errors.New("unknown backend")
)

// Backend is a named inference service reachable over HTTP.
// Immutable after registration.
type Backend struct {
	Name      string
	BaseURL   string
	Model     string
	TaskTypes []string

	// RequestTimeout overrides the global executor timeout when non-zero.
	RequestTimeout time.Duration
}

// Supports reports whether the backend declares the given task type.
func (b *Backend) Supports(taskType string) bool {
	for _, t := range b.TaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// Registry is the single source of truth for backend identity.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	backends map[string]*Backend
}

func New() *Registry {
	return &Registry{
		backends: make(map[string]*Backend),
	}
}

// FromConfig builds a registry from the configured backend list.
func FromConfig(backends []config.BackendConfig) (*Registry, error) {
	r := New()
	for _, bc := range backends {
		b := &Backend{
			Name:           bc.Name,
			BaseURL:        bc.BaseURL,
			Model:          bc.Model,
			TaskTypes:      append([]string(nil), bc.TaskTypes...),
			RequestTimeout: bc.RequestTimeout.Std(),
		}
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a backend. Registration happens once at startup.
func (r *Registry) Register(b *Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.backends[b.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, b.Name)
	}
	r.backends[b.Name] = b
	r.order = append(r.order, b.Name)
	return nil
}

// Get returns the backend by name.
func (r *Registry) Get(name string) (*Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// List returns all backends in registration order.
func (r *Registry) List() []*Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Backend, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, r.backends[name])
	}
	return list
}
