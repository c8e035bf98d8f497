package protocol

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry manages servers and provides lifecycle management.
// It is thread-safe and can be used concurrently.
type Registry struct {
	servers map[string]Server
	mu      sync.RWMutex
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		servers: make(map[string]Server),
	}
}

// Register adds a server to the registry.
// Returns an error if a server with the same ID already exists.
func (r *Registry) Register(s Server) error {
	if s == nil {
		return ErrNilServer
	}

	meta := s.Metadata()
	if meta.ID == "" {
		return ErrEmptyServerID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.servers[meta.ID]; exists {
		return fmt.Errorf("%w: %s", ErrServerExists, meta.ID)
	}

	r.servers[meta.ID] = s
	return nil
}

// List returns all registered servers ordered by ID.
func (r *Registry) List() []Server {
	r.mu.RLock()
	servers := make([]Server, 0, len(r.servers))
	for _, s := range r.servers {
		servers = append(servers, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(servers, func(a, b Server) int {
		return cmp.Compare(a.Metadata().ID, b.Metadata().ID)
	})
	return servers
}

// Count returns the number of registered servers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.servers)
}

// StartAll starts every registered server concurrently and blocks until all
// of them have returned. The first start failure cancels the others.
func (r *Registry) StartAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.List() {
		g.Go(func() error {
			if err := s.Start(gctx); err != nil {
				return fmt.Errorf("failed to start server %s: %w", s.Metadata().ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CloseAll closes every registered server and joins the errors.
func (r *Registry) CloseAll() error {
	var errs []error
	for _, s := range r.List() {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close server %s: %w", s.Metadata().ID, err))
		}
	}
	return errors.Join(errs...)
}

// HealthAll returns the health status of every server keyed by ID.
func (r *Registry) HealthAll(ctx context.Context) map[string]HealthStatus {
	servers := r.List()
	results := make(map[string]HealthStatus, len(servers))
	for _, s := range servers {
		results[s.Metadata().ID] = s.Health(ctx)
	}
	return results
}
