package service

import (
	"context"

	"vendora/internal/domain/entity"
)

type Intent string

const (
	IntentQuery     Intent = "QUERY"
	IntentPurchase  Intent = "PURCHASE"
	IntentNegotiate Intent = "NEGOTIATE"
	IntentCancel    Intent = "CANCEL"
	IntentConfirm   Intent = "CONFIRM"
	IntentIgnore    Intent = "IGNORE"
	IntentOther     Intent = "OTHER"
)

// SessionContext is the slice of session state the classifier may condition
// on. The core never hands the classifier the full session.
type SessionContext struct {
	State        entity.SessionState
	LastItemName string
	Negotiating  bool
}

// Classifier is the external NLU collaborator. Classify may call a model;
// ExtractOffer and AcceptSignal are deterministic so the negotiation engine
// never depends on model availability.
type Classifier interface {
	Classify(ctx context.Context, text string, sc SessionContext) (Intent, error)
	ExtractOffer(text string) int64
	AcceptSignal(text string) bool
	MatchProducts(ctx context.Context, text string, items []entity.Item) ([]entity.Item, error)
}
