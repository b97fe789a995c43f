package repository

import (
	"context"

	"vendora/internal/domain/entity"
)

type TrustRepository interface {
	GetByActor(ctx context.Context, actor entity.Actor) (*entity.TrustRelationship, error)
	Save(ctx context.Context, relationship *entity.TrustRelationship) error
}
