package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/repository"
	"vendora/pkg/errors"
)

type firestoreTrustRepository struct {
	client *firestore.Client
}

func NewFirestoreTrustRepository(client *firestore.Client) repository.TrustRepository {
	return &firestoreTrustRepository{
		client: client,
	}
}

func (r *firestoreTrustRepository) GetByActor(ctx context.Context, actor entity.Actor) (*entity.TrustRelationship, error) {
	doc, err := r.client.Collection("trust_relationships").Doc(actor.Key()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Trust relationship", err)
		}
		return nil, errors.Internal("Failed to get trust relationship", err)
	}

	var relationship entity.TrustRelationship
	if err := doc.DataTo(&relationship); err != nil {
		return nil, errors.Internal("Failed to parse trust relationship data", err)
	}

	return &relationship, nil
}

func (r *firestoreTrustRepository) Save(ctx context.Context, relationship *entity.TrustRelationship) error {
	if relationship.ID == "" {
		relationship.ID = entity.Actor{BuyerID: relationship.BuyerID, VendorID: relationship.VendorID}.Key()
	}
	if relationship.CreatedAt.IsZero() {
		relationship.CreatedAt = time.Now()
	}
	relationship.UpdatedAt = time.Now()

	_, err := r.client.Collection("trust_relationships").Doc(relationship.ID).Set(ctx, relationship)
	if err != nil {
		return errors.Internal("Failed to save trust relationship", err)
	}

	return nil
}
