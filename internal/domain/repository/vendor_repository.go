package repository

import (
	"context"

	"vendora/internal/domain/entity"
)

type VendorRepository interface {
	GetByID(ctx context.Context, vendorID string) (*entity.VendorProfile, error)
	Save(ctx context.Context, vendor *entity.VendorProfile) error
	ListAll(ctx context.Context) ([]*entity.VendorProfile, error)
}
