package entity

import (
	"fmt"
	"strings"
	"time"
)

type SessionState string

const (
	StateIdle                    SessionState = "idle"
	StateQuerying                SessionState = "querying"
	StateSelectingItem           SessionState = "selecting_item"
	StateSelectingVariant        SessionState = "selecting_variant"
	StateVariantReady            SessionState = "variant_ready"
	StateNegotiating             SessionState = "negotiating"
	StateAwaitingPayment         SessionState = "awaiting_payment"
	StateAwaitingDeliveryConfirm SessionState = "awaiting_delivery_confirm"
)

// QuoteLockWindow is how long a quoted price stays usable for purchase
// before the catalog price must be re-fetched.
const QuoteLockWindow = 5 * time.Minute

// Actor is the unit of serialization: one buyer talking to one vendor.
type Actor struct {
	BuyerID  string
	VendorID string
}

func (a Actor) Key() string {
	return a.BuyerID + ":" + a.VendorID
}

func ParseActorKey(key string) (Actor, error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Actor{}, fmt.Errorf("invalid actor key: %q", key)
	}
	return Actor{BuyerID: parts[0], VendorID: parts[1]}, nil
}

// PriceQuote is a quoted item price with an implicit lock window.
type PriceQuote struct {
	SKU      string    `json:"sku" firestore:"sku"`
	Name     string    `json:"name" firestore:"name"`
	Price    int64     `json:"price" firestore:"price"`
	QuotedAt time.Time `json:"quoted_at" firestore:"quotedAt"`
}

func (q *PriceQuote) Expired(now time.Time) bool {
	return now.Sub(q.QuotedAt) > QuoteLockWindow
}

// Negotiation is the structured haggling record. Round 0 means the buyer has
// signaled intent to negotiate but no counter has been proposed yet.
type Negotiation struct {
	Round        int   `json:"round" firestore:"round"`
	CounterPrice int64 `json:"counter_price" firestore:"counterPrice"`
}

type NegotiationPolicy string

const (
	PolicyAuto     NegotiationPolicy = "auto"
	PolicyFixed    NegotiationPolicy = "fixed"
	PolicyEscalate NegotiationPolicy = "escalate"
)

func ParseNegotiationPolicy(s string) NegotiationPolicy {
	switch NegotiationPolicy(s) {
	case PolicyFixed:
		return PolicyFixed
	case PolicyEscalate:
		return PolicyEscalate
	default:
		return PolicyAuto
	}
}

// ItemCandidate is one entry of a multi-match result awaiting buyer selection.
type ItemCandidate struct {
	SKU   string `json:"sku" firestore:"sku"`
	Name  string `json:"name" firestore:"name"`
	Price int64  `json:"price" firestore:"price"`
}

// Session is the per-actor conversation record. It is only ever mutated by
// the single queued handler for its actor; at most one of Negotiation and
// PendingPaymentRef is active at a time.
type Session struct {
	ID       string       `json:"id" firestore:"id"`
	BuyerID  string       `json:"buyer_id" firestore:"buyerId"`
	VendorID string       `json:"vendor_id" firestore:"vendorId"`
	State    SessionState `json:"state" firestore:"state"`

	LastItemRef       *PriceQuote       `json:"last_item_ref,omitempty" firestore:"lastItemRef,omitempty"`
	Negotiation       *Negotiation      `json:"negotiation,omitempty" firestore:"negotiation,omitempty"`
	PendingPaymentRef string            `json:"pending_payment_ref,omitempty" firestore:"pendingPaymentRef,omitempty"`
	Policy            NegotiationPolicy `json:"policy" firestore:"policy"`

	Candidates       []ItemCandidate   `json:"candidates,omitempty" firestore:"candidates,omitempty"`
	VariantSelection map[string]string `json:"variant_selection,omitempty" firestore:"variantSelection,omitempty"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

func (s *Session) Actor() Actor {
	return Actor{BuyerID: s.BuyerID, VendorID: s.VendorID}
}

// Reset clears every optional field and returns the session to idle. Used on
// explicit cancel and after a completed checkout cycle.
func (s *Session) Reset() {
	s.State = StateIdle
	s.LastItemRef = nil
	s.Negotiation = nil
	s.PendingPaymentRef = ""
	s.Candidates = nil
	s.VariantSelection = nil
}
