package repository

import (
	"context"
	"time"

	"vendora/internal/domain/entity"
)

type TransactionRepository interface {
	Create(ctx context.Context, transaction *entity.Transaction) error
	GetByReference(ctx context.Context, reference string) (*entity.Transaction, error)
	Update(ctx context.Context, transaction *entity.Transaction) error
	List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]*entity.Transaction, int64, error)

	// FindRecentPaid returns the latest paid transaction for the same
	// actor and item inside the window, excluding excludeRef. Used by the
	// duplicate-settlement guard.
	FindRecentPaid(ctx context.Context, actor entity.Actor, itemSKU string, since time.Time, excludeRef string) (*entity.Transaction, error)

	// ListPendingOlderThan returns pending transactions created before the
	// cutoff, for the expiry sweep.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Transaction, error)

	// ListDueForRelease returns paid transactions whose escrow release
	// time has passed and whose payout has not been released yet.
	ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]*entity.Transaction, error)

	// ListUnappliedSettlements returns pending transactions whose gateway
	// settlement was observed before the cutoff but never applied, for the
	// settlement retry sweep.
	ListUnappliedSettlements(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Transaction, error)
}
