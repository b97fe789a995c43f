package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/repository"
	"vendora/pkg/errors"
)

type firestoreVendorRepository struct {
	client *firestore.Client
}

func NewFirestoreVendorRepository(client *firestore.Client) repository.VendorRepository {
	return &firestoreVendorRepository{
		client: client,
	}
}

func (r *firestoreVendorRepository) GetByID(ctx context.Context, vendorID string) (*entity.VendorProfile, error) {
	doc, err := r.client.Collection("vendors").Doc(vendorID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Vendor", err)
		}
		return nil, errors.Internal("Failed to get vendor", err)
	}

	var vendor entity.VendorProfile
	if err := doc.DataTo(&vendor); err != nil {
		return nil, errors.Internal("Failed to parse vendor data", err)
	}

	return &vendor, nil
}

func (r *firestoreVendorRepository) Save(ctx context.Context, vendor *entity.VendorProfile) error {
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = time.Now()
	}
	vendor.UpdatedAt = time.Now()

	_, err := r.client.Collection("vendors").Doc(vendor.ID).Set(ctx, vendor)
	if err != nil {
		return errors.Internal("Failed to save vendor", err)
	}

	return nil
}

func (r *firestoreVendorRepository) ListAll(ctx context.Context) ([]*entity.VendorProfile, error) {
	iter := r.client.Collection("vendors").Documents(ctx)
	var vendors []*entity.VendorProfile

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate vendors", err)
		}

		var vendor entity.VendorProfile
		if err := doc.DataTo(&vendor); err != nil {
			return nil, errors.Internal("Failed to parse vendor data", err)
		}
		vendors = append(vendors, &vendor)
	}

	return vendors, nil
}
