package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vendora/internal/domain/entity"
)

type countingCatalog struct {
	calls int
	items []entity.Item
}

func (c *countingCatalog) GetInventory(ctx context.Context, vendorID string) ([]entity.Item, error) {
	c.calls++
	return c.items, nil
}

func (c *countingCatalog) DecrementStock(ctx context.Context, vendorID, sku string, n int) error {
	for i := range c.items {
		if c.items[i].SKU == sku {
			c.items[i].Quantity -= n
		}
	}
	return nil
}

func TestCacheServesWithinTTL(t *testing.T) {
	backing := &countingCatalog{items: []entity.Item{{SKU: "A1", Name: "Ankara bag", Price: 25000}}}
	cache := NewCache(backing, time.Minute)

	_, err := cache.GetInventory(context.Background(), "v1")
	assert.NoError(t, err)
	_, err = cache.GetInventory(context.Background(), "v1")
	assert.NoError(t, err)

	assert.Equal(t, 1, backing.calls)
}

func TestDecrementInvalidates(t *testing.T) {
	backing := &countingCatalog{items: []entity.Item{{SKU: "A1", Name: "Ankara bag", Price: 25000, Quantity: 2}}}
	cache := NewCache(backing, time.Minute)

	_, _ = cache.GetInventory(context.Background(), "v1")
	assert.NoError(t, cache.DecrementStock(context.Background(), "v1", "A1", 1))

	items, err := cache.GetInventory(context.Background(), "v1")
	assert.NoError(t, err)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, 2, backing.calls)
}
