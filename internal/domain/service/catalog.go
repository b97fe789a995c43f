package service

import (
	"context"

	"vendora/internal/domain/entity"
)

// Catalog is the inventory collaborator. GetInventory returns the vendor's
// current items; DecrementStock is the settlement side effect and must be
// atomic per (vendor, sku).
type Catalog interface {
	GetInventory(ctx context.Context, vendorID string) ([]entity.Item, error)
	DecrementStock(ctx context.Context, vendorID, sku string, n int) error
}
