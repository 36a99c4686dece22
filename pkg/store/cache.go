package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/driftfs/internal/logger"
)

// Key identifies a backing store by kind and identifier. Equality is exact
// string comparison on both components.
type Key struct {
	Kind string
	Name string
}

func (k Key) String() string {
	return k.Kind + ":" + k.Name
}

// Cache maps backing-store keys to shared BackingStore handles so that
// multiple mounts using the same upstream repository share one instance.
//
// Entries live for the daemon's lifetime: backing stores hold no
// meaningfully reclaimable per-use resources beyond what referencing
// mounts already retain, so there is no eviction. Construction happens
// while holding the cache lock; store construction is expected to be cheap
// and lazy, and serializing it keeps the one-instance-per-key invariant
// trivial.
type Cache struct {
	mu      sync.Mutex
	stores  map[Key]BackingStore
	factory Factory
}

// NewCache creates an empty cache that constructs missing stores with the
// given factory.
func NewCache(factory Factory) *Cache {
	return &Cache{
		stores:  make(map[Key]BackingStore),
		factory: factory,
	}
}

// GetOrCreate returns the shared handle for (kind, name), constructing it
// on first use. A factory failure is returned to the caller without
// inserting an entry, so a later lookup retries construction.
func (c *Cache) GetOrCreate(ctx context.Context, kind, name string) (BackingStore, error) {
	key := Key{Kind: kind, Name: name}

	c.mu.Lock()
	defer c.mu.Unlock()

	if bs, ok := c.stores[key]; ok {
		return bs, nil
	}

	bs, err := c.factory(ctx, kind, name)
	if err != nil {
		return nil, fmt.Errorf("failed to construct backing store %s: %w", key, err)
	}

	c.stores[key] = bs
	logger.Info("backing store created", "store_kind", kind, "store_name", name)
	return bs, nil
}

// Get returns the cached handle for (kind, name), or nil if none exists.
func (c *Cache) Get(kind, name string) BackingStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stores[Key{Kind: kind, Name: name}]
}

// Len returns the number of cached stores.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stores)
}

// CloseAll closes every cached store and empties the cache. Individual
// close failures are collected; all stores are attempted regardless.
// Called during shutdown after every mount has been unmounted.
func (c *Cache) CloseAll() error {
	c.mu.Lock()
	stores := c.stores
	c.stores = make(map[Key]BackingStore)
	c.mu.Unlock()

	var errs []error
	for key, bs := range stores {
		if err := bs.Close(); err != nil {
			logger.Warn("failed to close backing store", "store_kind", key.Kind, "store_name", key.Name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
