// Package storefront keeps the per-device session holder, cart and favorites.
package storefront

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coffeehouse/internal/cart"
	"coffeehouse/internal/favorites"
	"coffeehouse/internal/metrics"
	"coffeehouse/internal/remote"
	"coffeehouse/internal/session"
	"coffeehouse/internal/storage"
	"go.uber.org/zap"
)

// Deps are shared by every device client.
type Deps struct {
	Identity  remote.IdentityService
	Documents remote.DocumentStore
	Storage   storage.Store
	Profiles  session.Profiles
	Cart      cart.Options
}

// Client is the state of one device. Its fields are only touched inside Registry.Do.
type Client struct {
	Session   *session.Holder
	Cart      *cart.Aggregator
	Favorites *favorites.Set

	mu       sync.Mutex
	ready    bool
	evicted  bool
	lastUsed time.Time
}

// Registry hands out one Client per device id.
type Registry struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
}

// NewRegistry returns an empty registry over deps.
func NewRegistry(deps Deps, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{deps: deps, logger: logger, now: time.Now, clients: make(map[string]*Client)}
}

// Do runs fn with the device's client locked. The client is built and rehydrated from
// storage on first use; when rehydration fails the error is returned and the next call
// tries again.
func (r *Registry) Do(ctx context.Context, deviceID string, fn func(*Client) error) error {
	for {
		c := r.client(deviceID)
		c.mu.Lock()
		if c.evicted {
			// Swept between lookup and lock; a replacement is in the map.
			c.mu.Unlock()
			continue
		}
		err := r.run(ctx, deviceID, c, fn)
		c.mu.Unlock()
		return err
	}
}

func (r *Registry) run(ctx context.Context, deviceID string, c *Client, fn func(*Client) error) error {
	if !c.ready {
		if err := r.build(ctx, deviceID, c); err != nil {
			return err
		}
	}
	c.lastUsed = r.now()
	return fn(c)
}

func (r *Registry) client(deviceID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[deviceID]
	if !ok {
		c = &Client{lastUsed: r.now()}
		r.clients[deviceID] = c
	}
	return c
}

func (r *Registry) build(ctx context.Context, deviceID string, c *Client) error {
	logger := r.logger.With(zap.String("device_id", deviceID))
	store := storage.Scoped(r.deps.Storage, "device:"+deviceID)

	holder := session.New(r.deps.Identity, store, r.deps.Profiles, logger)
	agg := cart.New(r.deps.Documents, store, holder, r.deps.Cart, logger)
	holder.Subscribe(agg.OnIdentityChange)

	holder.CheckCurrentSession(ctx)
	if err := agg.Load(ctx); err != nil {
		return fmt.Errorf("rehydrate device %s: %w", deviceID, err)
	}

	c.Session = holder
	c.Cart = agg
	c.Favorites = favorites.New(store, holder, logger)
	c.ready = true
	return nil
}

// Len reports how many device clients are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Sweep drops clients idle for longer than idle. Their state stays in storage and is
// rehydrated on the next request. Busy clients are skipped, and so are clients holding a
// checked-out cart that storage has not cleared yet.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, c := range r.clients {
		if !c.mu.TryLock() {
			continue
		}
		if c.lastUsed.Before(cutoff) && !(c.ready && c.Cart.PendingClear()) {
			c.evicted = true
			delete(r.clients, id)
			evicted++
		}
		c.mu.Unlock()
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := r.Sweep(idle)
			remaining := r.Len()
			metrics.SetActiveClients(remaining)
			if n > 0 {
				r.logger.Debug("evicted idle clients", zap.Int("count", n), zap.Int("remaining", remaining))
			}
		}
	}
}
