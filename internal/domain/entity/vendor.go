package entity

import "time"

type VendorTier string

const (
	TierNone     VendorTier = "none"
	TierRising   VendorTier = "rising"
	TierVerified VendorTier = "verified"
	TierTrusted  VendorTier = "trusted"
	TierElite    VendorTier = "elite"
)

// tierRank orders tiers for monotonicity checks. Promotion only ever moves
// rank upward; demotion is a separate dispute-triggered step down.
func (t VendorTier) Rank() int {
	switch t {
	case TierRising:
		return 1
	case TierVerified:
		return 2
	case TierTrusted:
		return 3
	case TierElite:
		return 4
	default:
		return 0
	}
}

// HoldMultiplier scales escrow hold hours. Elite forces an instant release
// regardless of the relationship factor, which is why the tier factor is
// applied last in the resolver.
func (t VendorTier) HoldMultiplier() float64 {
	switch t {
	case TierRising:
		return 0.75
	case TierVerified:
		return 0.5
	case TierTrusted:
		return 0.25
	case TierElite:
		return 0
	default:
		return 1.0
	}
}

// CapMultiplier scales the base daily volume cap.
func (t VendorTier) CapMultiplier() float64 {
	switch t {
	case TierRising:
		return 1.5
	case TierVerified:
		return 2.0
	case TierTrusted:
		return 3.0
	case TierElite:
		return 5.0
	default:
		return 1.0
	}
}

func TierBelow(t VendorTier) VendorTier {
	switch t {
	case TierElite:
		return TierTrusted
	case TierTrusted:
		return TierVerified
	case TierVerified:
		return TierRising
	default:
		return TierNone
	}
}

// VendorProfile is the platform-wide vendor record, shared across all of the
// vendor's buyer conversations. Read-check-write on it must be serialized per
// vendor.
type VendorProfile struct {
	ID   string `json:"id" firestore:"id"`
	Name string `json:"name" firestore:"name"`

	Tier   VendorTier        `json:"tier" firestore:"tier"`
	Policy NegotiationPolicy `json:"negotiation_policy" firestore:"negotiationPolicy"`

	CompletedOrders int `json:"completed_orders" firestore:"completedOrders"`
	ConfirmedOrders int `json:"confirmed_orders" firestore:"confirmedOrders"`

	// Dispute timestamps inside the trailing window; pruned on write.
	DisputeDates []time.Time `json:"dispute_dates,omitempty" firestore:"disputeDates,omitempty"`

	ActiveSince time.Time `json:"active_since" firestore:"activeSince"`
	CreatedAt   time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" firestore:"updatedAt"`
}

// ConfirmationRate is the share of completed orders the buyer explicitly
// confirmed receiving.
func (v *VendorProfile) ConfirmationRate() float64 {
	if v.CompletedOrders == 0 {
		return 0
	}
	return float64(v.ConfirmedOrders) / float64(v.CompletedOrders)
}

// DisputesWithin counts disputes in the trailing window ending at now.
func (v *VendorProfile) DisputesWithin(window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	count := 0
	for _, d := range v.DisputeDates {
		if d.After(cutoff) {
			count++
		}
	}
	return count
}
