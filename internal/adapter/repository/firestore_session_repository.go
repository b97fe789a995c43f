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

type firestoreSessionRepository struct {
	client *firestore.Client
}

func NewFirestoreSessionRepository(client *firestore.Client) repository.SessionRepository {
	return &firestoreSessionRepository{
		client: client,
	}
}

// Sessions are keyed by the actor key so there is exactly one document per
// (buyer, vendor) pair.
func (r *firestoreSessionRepository) GetByActor(ctx context.Context, actor entity.Actor) (*entity.Session, error) {
	doc, err := r.client.Collection("sessions").Doc(actor.Key()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Session", err)
		}
		return nil, errors.Internal("Failed to get session", err)
	}

	var session entity.Session
	if err := doc.DataTo(&session); err != nil {
		return nil, errors.Internal("Failed to parse session data", err)
	}

	return &session, nil
}

func (r *firestoreSessionRepository) Save(ctx context.Context, session *entity.Session) error {
	if session.ID == "" {
		session.ID = session.Actor().Key()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = time.Now()

	_, err := r.client.Collection("sessions").Doc(session.ID).Set(ctx, session)
	if err != nil {
		return errors.Internal("Failed to save session", err)
	}

	return nil
}

func (r *firestoreSessionRepository) Delete(ctx context.Context, actor entity.Actor) error {
	_, err := r.client.Collection("sessions").Doc(actor.Key()).Delete(ctx)
	if err != nil {
		return errors.Internal("Failed to delete session", err)
	}

	return nil
}
