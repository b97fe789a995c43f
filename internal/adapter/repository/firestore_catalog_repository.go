package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/service"
	"vendora/pkg/errors"
)

type firestoreCatalogRepository struct {
	client *firestore.Client
}

func NewFirestoreCatalogRepository(client *firestore.Client) service.Catalog {
	return &firestoreCatalogRepository{
		client: client,
	}
}

func (r *firestoreCatalogRepository) GetInventory(ctx context.Context, vendorID string) ([]entity.Item, error) {
	query := r.client.Collection("inventory").
		Where("vendorId", "==", vendorID).
		OrderBy("name", firestore.Asc)

	iter := query.Documents(ctx)
	var items []entity.Item

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate inventory", err)
		}

		var item entity.Item
		if err := doc.DataTo(&item); err != nil {
			return nil, errors.Internal("Failed to parse inventory item", err)
		}
		items = append(items, item)
	}

	return items, nil
}

// DecrementStock runs inside a Firestore transaction so two settlements can
// never both take the last unit.
func (r *firestoreCatalogRepository) DecrementStock(ctx context.Context, vendorID, sku string, n int) error {
	ref := r.client.Collection("inventory").Doc(vendorID + ":" + sku)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var item entity.Item
		if err := doc.DataTo(&item); err != nil {
			return err
		}

		if item.Quantity < n {
			return errors.Conflict("Insufficient stock")
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "quantity", Value: item.Quantity - n},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Inventory item", err)
		}
		if errors.Is(err, "CONFLICT") {
			return err
		}
		return errors.Internal("Failed to decrement stock", err)
	}

	return nil
}
