package inventory

import (
	"context"
	"sync"
	"time"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/service"
)

type cacheEntry struct {
	items     []entity.Item
	fetchedAt time.Time
}

// Cache is a process-scoped TTL cache in front of the catalog. It is
// constructed at startup and swept periodically; stock decrements invalidate
// the vendor's entry so the next read sees fresh quantities.
type Cache struct {
	catalog service.Catalog
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCache(catalog service.Catalog, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		catalog: catalog,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) GetInventory(ctx context.Context, vendorID string) ([]entity.Item, error) {
	c.mu.RLock()
	entry, ok := c.entries[vendorID]
	c.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) <= c.ttl {
		return entry.items, nil
	}

	items, err := c.catalog.GetInventory(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[vendorID] = cacheEntry{items: items, fetchedAt: time.Now()}
	c.mu.Unlock()

	return items, nil
}

func (c *Cache) DecrementStock(ctx context.Context, vendorID, sku string, n int) error {
	if err := c.catalog.DecrementStock(ctx, vendorID, sku, n); err != nil {
		return err
	}

	c.Invalidate(vendorID)
	return nil
}

func (c *Cache) Invalidate(vendorID string) {
	c.mu.Lock()
	delete(c.entries, vendorID)
	c.mu.Unlock()
}

func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for vendorID, entry := range c.entries {
		if now.Sub(entry.fetchedAt) > c.ttl {
			delete(c.entries, vendorID)
		}
	}
}

func (c *Cache) StartSweepRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.ttl)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}
