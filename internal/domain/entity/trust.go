package entity

import "time"

type TrustLevel string

const (
	TrustNew      TrustLevel = "new"
	TrustFamiliar TrustLevel = "familiar"
	TrustTrusted  TrustLevel = "trusted"
	TrustVIP      TrustLevel = "vip"
)

// TrustRelationship tracks one buyer-vendor pair. Level is derived from order
// history; the two trust flags are explicit opt-ins and never derived.
type TrustRelationship struct {
	ID       string `json:"id" firestore:"id"`
	BuyerID  string `json:"buyer_id" firestore:"buyerId"`
	VendorID string `json:"vendor_id" firestore:"vendorId"`

	CompletedOrders int        `json:"completed_orders" firestore:"completedOrders"`
	DisputedOrders  int        `json:"disputed_orders" firestore:"disputedOrders"`
	Level           TrustLevel `json:"trust_level" firestore:"trustLevel"`

	VendorTrustsBuyer bool `json:"vendor_trusts_buyer" firestore:"vendorTrustsBuyer"`
	BuyerTrustsVendor bool `json:"buyer_trusts_vendor" firestore:"buyerTrustsVendor"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

func (r *TrustRelationship) Mutual() bool {
	return r.VendorTrustsBuyer && r.BuyerTrustsVendor
}

// HoldMultiplier maps the relationship level onto the escrow hold factor.
func (l TrustLevel) HoldMultiplier() float64 {
	switch l {
	case TrustFamiliar:
		return 0.75
	case TrustTrusted:
		return 0.5
	case TrustVIP:
		return 0.25
	default:
		return 1.0
	}
}

// DeriveTrustLevel recomputes the level from order history. A dispute can
// demote a relationship; only the explicit flags are sticky.
func DeriveTrustLevel(completed, disputed int) TrustLevel {
	total := completed + disputed
	if total == 0 {
		return TrustNew
	}

	successRate := float64(completed) / float64(total)

	switch {
	case completed >= 10 && successRate >= 0.95:
		return TrustVIP
	case completed >= 5 && successRate >= 0.9:
		return TrustTrusted
	case completed >= 2 && successRate >= 0.8:
		return TrustFamiliar
	default:
		return TrustNew
	}
}
