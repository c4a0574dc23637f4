package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/identity"
)

type registryEntry struct {
	engine   *Engine
	lastSeen time.Time
}

// Registry hands out one Engine per owner, so the per-line serialization and
// the reconcile gate survive across requests from the same visitor.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry

	client  AuthoritativeClient
	catalog VariantResolver
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates an empty engine registry.
func NewRegistry(client AuthoritativeClient, catalog VariantResolver, logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
		client:  client,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

// Engine returns the engine for the owner, creating it lazily.
func (r *Registry) Engine(owner identity.OwnerRef) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[owner.Key()]
	if !ok {
		entry = &registryEntry{engine: NewEngine(owner, r.client, r.catalog, r.logger)}
		r.entries[owner.Key()] = entry
	}
	entry.lastSeen = r.now()
	return entry.engine
}

// Drop discards the engine for the owner. Used when a merge retires the
// anonymous identity: its cart is gone from the authoritative store too.
func (r *Registry) Drop(owner identity.OwnerRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, owner.Key())
}

// Prune drops engines idle for longer than maxIdle and returns the count.
func (r *Registry) Prune(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	cutoff := r.now().Add(-maxIdle)
	for key, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// StartJanitor prunes idle engines at the given interval until ctx is done.
func (r *Registry) StartJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := r.Prune(maxIdle); removed > 0 {
				r.logger.Debug("Pruned idle cart engines", "count", removed)
			}
		}
	}
}
