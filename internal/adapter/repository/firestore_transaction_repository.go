package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/repository"
	"vendora/pkg/errors"
)

type firestoreTransactionRepository struct {
	client *firestore.Client
}

func NewFirestoreTransactionRepository(client *firestore.Client) repository.TransactionRepository {
	return &firestoreTransactionRepository{
		client: client,
	}
}

// Transactions are keyed by their gateway reference, which is what makes the
// reference a usable idempotency key: one document per payment attempt.
func (r *firestoreTransactionRepository) Create(ctx context.Context, transaction *entity.Transaction) error {
	if transaction.ID == "" {
		transaction.ID = uuid.New().String()
	}

	now := time.Now()
	transaction.CreatedAt = now
	transaction.UpdatedAt = now

	_, err := r.client.Collection("transactions").Doc(transaction.Reference).Set(ctx, transaction)
	if err != nil {
		return errors.Internal("Failed to create transaction", err)
	}

	return nil
}

func (r *firestoreTransactionRepository) GetByReference(ctx context.Context, reference string) (*entity.Transaction, error) {
	doc, err := r.client.Collection("transactions").Doc(reference).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Transaction", err)
		}
		return nil, errors.Internal("Failed to get transaction", err)
	}

	var transaction entity.Transaction
	if err := doc.DataTo(&transaction); err != nil {
		return nil, errors.Internal("Failed to parse transaction data", err)
	}

	return &transaction, nil
}

func (r *firestoreTransactionRepository) Update(ctx context.Context, transaction *entity.Transaction) error {
	transaction.UpdatedAt = time.Now()

	_, err := r.client.Collection("transactions").Doc(transaction.Reference).Set(ctx, transaction)
	if err != nil {
		return errors.Internal("Failed to update transaction", err)
	}

	return nil
}

func (r *firestoreTransactionRepository) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]*entity.Transaction, int64, error) {
	collection := r.client.Collection("transactions")
	query := collection.OrderBy("createdAt", firestore.Desc)

	for key, value := range filter {
		query = query.Where(key, "==", value)
	}

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, 0, errors.Internal("Failed to count transactions", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	var transactions []*entity.Transaction

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, errors.Internal("Failed to iterate transactions", err)
		}

		var transaction entity.Transaction
		if err := doc.DataTo(&transaction); err != nil {
			return nil, 0, errors.Internal("Failed to parse transaction data", err)
		}
		transactions = append(transactions, &transaction)
	}

	return transactions, total, nil
}

func (r *firestoreTransactionRepository) FindRecentPaid(ctx context.Context, actor entity.Actor, itemSKU string, since time.Time, excludeRef string) (*entity.Transaction, error) {
	query := r.client.Collection("transactions").
		Where("buyerId", "==", actor.BuyerID).
		Where("vendorId", "==", actor.VendorID).
		Where("itemSku", "==", itemSKU).
		Where("status", "==", string(entity.TransactionPaid)).
		Where("paidAt", ">=", since).
		OrderBy("paidAt", firestore.Desc)

	iter := query.Documents(ctx)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil, errors.NotFound("Transaction", nil)
		}
		if err != nil {
			return nil, errors.Internal("Failed to query recent paid transactions", err)
		}

		var transaction entity.Transaction
		if err := doc.DataTo(&transaction); err != nil {
			return nil, errors.Internal("Failed to parse transaction data", err)
		}
		if transaction.Reference != excludeRef {
			return &transaction, nil
		}
	}
}

func (r *firestoreTransactionRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Transaction, error) {
	query := r.client.Collection("transactions").
		Where("status", "==", string(entity.TransactionPending)).
		Where("createdAt", "<", cutoff).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit)

	return r.collect(ctx, query)
}

func (r *firestoreTransactionRepository) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]*entity.Transaction, error) {
	query := r.client.Collection("transactions").
		Where("status", "==", string(entity.TransactionPaid)).
		Where("payoutReleased", "==", false).
		Where("escrowReleaseAt", "<=", now).
		OrderBy("escrowReleaseAt", firestore.Asc).
		Limit(limit)

	return r.collect(ctx, query)
}

func (r *firestoreTransactionRepository) ListUnappliedSettlements(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Transaction, error) {
	query := r.client.Collection("transactions").
		Where("status", "==", string(entity.TransactionPending)).
		Where("settlementObservedAt", "<", cutoff).
		OrderBy("settlementObservedAt", firestore.Asc).
		Limit(limit)

	return r.collect(ctx, query)
}

func (r *firestoreTransactionRepository) collect(ctx context.Context, query firestore.Query) ([]*entity.Transaction, error) {
	iter := query.Documents(ctx)
	var transactions []*entity.Transaction

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate transactions", err)
		}

		var transaction entity.Transaction
		if err := doc.DataTo(&transaction); err != nil {
			return nil, errors.Internal("Failed to parse transaction data", err)
		}
		transactions = append(transactions, &transaction)
	}

	return transactions, nil
}
