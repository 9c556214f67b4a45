package tenancy

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/daylihorse/nour-hub/internal/metrics"
	"github.com/daylihorse/nour-hub/internal/service"
)

// Registry owns the stores of the devices seen by this process. The least
// recently used store is dropped once size is exceeded; its persisted
// preferences bring it back on the next request.
type Registry struct {
	deps    Deps
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	cache *lru.Cache[string, *registered]
}

type registered struct {
	store *Store
	once  sync.Once
}

func NewRegistry(size int, deps Deps) (*Registry, error) {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := &Registry{
		deps:    deps,
		logger:  deps.Logger.Named("tenancy.registry"),
		metrics: deps.Metrics,
	}
	cache, err := lru.NewWithEvict[string, *registered](size, func(deviceID string, _ *registered) {
		r.metrics.ActiveStores.Dec()
	})
	if err != nil {
		return nil, fmt.Errorf("create store registry: %w", err)
	}
	r.cache = cache
	return r, nil
}

// Get returns the store of a device, creating and bootstrapping it on first
// use. A failed bootstrap is logged and leaves the store empty.
func (r *Registry) Get(ctx context.Context, deviceID string) *Store {
	r.mu.Lock()
	entry, ok := r.cache.Get(deviceID)
	if !ok {
		entry = &registered{store: NewStore(deviceID, r.deps)}
		r.cache.Add(deviceID, entry)
		r.metrics.ActiveStores.Inc()
	}
	r.mu.Unlock()

	entry.once.Do(func() {
		if err := entry.store.Bootstrap(ctx); err != nil {
			r.logger.Warn("failed to restore device state", zap.String("device_id", deviceID), zap.Error(err))
		}
	})
	return entry.store
}

// Peek returns a store without creating it or touching its recency.
func (r *Registry) Peek(deviceID string) (*Store, bool) {
	entry, ok := r.cache.Peek(deviceID)
	if !ok {
		return nil, false
	}
	return entry.store, true
}

// Detached returns a fresh signed-out store for a device without
// registering it. Requests that may not see the registered state of the
// device are answered from it.
func (r *Registry) Detached(deviceID string) *Store {
	return NewStore(deviceID, r.deps)
}

func (r *Registry) Len() int {
	return r.cache.Len()
}

// HandleAuthEvent signs out every store holding a session that was closed
// elsewhere, e.g. by a logout from another device or a password change.
func (r *Registry) HandleAuthEvent(change service.AuthStateChange) {
	if change.Event != service.AuthEventSignedOut {
		return
	}
	for _, deviceID := range r.cache.Keys() {
		entry, ok := r.cache.Peek(deviceID)
		if !ok {
			continue
		}
		if !entry.store.HoldsSession(change.UserID, change.SessionID) {
			continue
		}
		r.logger.Info("session closed elsewhere, signing device out",
			zap.String("device_id", deviceID),
			zap.String("user_id", change.UserID.String()),
		)
		entry.store.Reset(context.Background())
	}
}
