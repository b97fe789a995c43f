package repository

import (
	"context"

	"vendora/internal/domain/entity"
)

type SessionRepository interface {
	GetByActor(ctx context.Context, actor entity.Actor) (*entity.Session, error)
	Save(ctx context.Context, session *entity.Session) error
	Delete(ctx context.Context, actor entity.Actor) error
}
