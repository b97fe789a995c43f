package usecase

import (
	"context"
	"math"
	"time"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/repository"
	"vendora/pkg/errors"
	"vendora/pkg/logger"
)

// DisputeWindow is the trailing window for dispute-triggered tier demotion.
const DisputeWindow = 30 * 24 * time.Hour

type HoldConfig struct {
	NewVendorHoldHours      int
	EstablishedHoldHours    int
	EstablishedVendorOrders int
	MutualTrustHoldHours    int
}

type TrustEscrowUseCase struct {
	trustRepo  repository.TrustRepository
	vendorRepo repository.VendorRepository
	holdConfig HoldConfig
}

func NewTrustEscrowUseCase(
	trustRepo repository.TrustRepository,
	vendorRepo repository.VendorRepository,
	holdConfig HoldConfig,
) *TrustEscrowUseCase {
	return &TrustEscrowUseCase{
		trustRepo:  trustRepo,
		vendorRepo: vendorRepo,
		holdConfig: holdConfig,
	}
}

// ResolveHold computes the escrow hold in whole hours. The order is
// load-bearing: the mutual-trust short-circuit skips everything else, and
// the tier factor is applied after the relationship factor so an elite
// vendor's zero multiplier always wins.
func (uc *TrustEscrowUseCase) ResolveHold(vendor *entity.VendorProfile, rel *entity.TrustRelationship, now time.Time) (int, time.Time) {
	if rel.Mutual() {
		hours := uc.holdConfig.MutualTrustHoldHours
		return hours, now.Add(time.Duration(hours) * time.Hour)
	}

	base := uc.holdConfig.NewVendorHoldHours
	if vendor.CompletedOrders >= uc.holdConfig.EstablishedVendorOrders {
		base = uc.holdConfig.EstablishedHoldHours
	}

	hours := int(math.Ceil(float64(base) * rel.Level.HoldMultiplier()))
	hours = int(math.Ceil(float64(hours) * vendor.Tier.HoldMultiplier()))
	if hours < 0 {
		hours = 0
	}

	return hours, now.Add(time.Duration(hours) * time.Hour)
}

// GetOrCreateRelationship returns the trust record for an actor, creating a
// fresh "new" level record on first contact.
func (uc *TrustEscrowUseCase) GetOrCreateRelationship(ctx context.Context, actor entity.Actor) (*entity.TrustRelationship, error) {
	rel, err := uc.trustRepo.GetByActor(ctx, actor)
	if err == nil {
		return rel, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		return nil, err
	}

	rel = &entity.TrustRelationship{
		BuyerID:  actor.BuyerID,
		VendorID: actor.VendorID,
		Level:    entity.TrustNew,
	}
	if err := uc.trustRepo.Save(ctx, rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// RecordDeliveryOutcome updates the relationship and vendor aggregates after
// the buyer answers the delivery prompt. Confirmed deliveries count toward
// promotion; disputes can demote both the relationship level and the tier.
func (uc *TrustEscrowUseCase) RecordDeliveryOutcome(ctx context.Context, actor entity.Actor, confirmed bool) error {
	rel, err := uc.GetOrCreateRelationship(ctx, actor)
	if err != nil {
		return err
	}

	if confirmed {
		rel.CompletedOrders++
	} else {
		rel.DisputedOrders++
	}
	rel.Level = entity.DeriveTrustLevel(rel.CompletedOrders, rel.DisputedOrders)

	if err := uc.trustRepo.Save(ctx, rel); err != nil {
		return err
	}

	vendor, err := uc.vendorRepo.GetByID(ctx, actor.VendorID)
	if err != nil {
		return err
	}

	if confirmed {
		vendor.ConfirmedOrders++
	} else {
		uc.recordDispute(vendor)
	}

	return uc.vendorRepo.Save(ctx, vendor)
}

// RecordCompletedOrder bumps the vendor's completed counter when a payment
// settles, independent of the later delivery confirmation.
func (uc *TrustEscrowUseCase) RecordCompletedOrder(ctx context.Context, vendorID string) error {
	vendor, err := uc.vendorRepo.GetByID(ctx, vendorID)
	if err != nil {
		return err
	}
	vendor.CompletedOrders++
	return uc.vendorRepo.Save(ctx, vendor)
}

// recordDispute appends the dispute and applies the demotion rule: two or
// more disputes inside the trailing window drop the vendor exactly one tier.
func (uc *TrustEscrowUseCase) recordDispute(vendor *entity.VendorProfile) {
	now := time.Now()
	vendor.DisputeDates = append(vendor.DisputeDates, now)

	// Prune entries that fell out of the window.
	kept := vendor.DisputeDates[:0]
	for _, d := range vendor.DisputeDates {
		if d.After(now.Add(-DisputeWindow)) {
			kept = append(kept, d)
		}
	}
	vendor.DisputeDates = kept

	if len(vendor.DisputeDates) >= 2 && vendor.Tier != entity.TierNone {
		demoted := entity.TierBelow(vendor.Tier)
		logger.Warn("Demoting vendor %s: %s -> %s after %d disputes in window",
			vendor.ID, vendor.Tier, demoted, len(vendor.DisputeDates))
		vendor.Tier = demoted
	}
}

type tierRequirement struct {
	tier            entity.VendorTier
	minTransactions int
	minConfirmRate  float64
	maxDisputes     int
	minDaysActive   int
}

// Evaluated highest first; a vendor lands on the highest tier whose
// conditions all hold.
var tierLadder = []tierRequirement{
	{entity.TierElite, 200, 0.98, 1, 180},
	{entity.TierTrusted, 75, 0.95, 2, 90},
	{entity.TierVerified, 25, 0.90, 3, 30},
	{entity.TierRising, 5, 0.80, 5, 7},
}

func (uc *TrustEscrowUseCase) qualifiedTier(vendor *entity.VendorProfile, now time.Time) entity.VendorTier {
	daysActive := int(now.Sub(vendor.ActiveSince).Hours() / 24)
	disputes := vendor.DisputesWithin(DisputeWindow, now)

	for _, req := range tierLadder {
		if vendor.CompletedOrders >= req.minTransactions &&
			vendor.ConfirmationRate() >= req.minConfirmRate &&
			disputes <= req.maxDisputes &&
			daysActive >= req.minDaysActive {
			return req.tier
		}
	}
	return entity.TierNone
}

// EvaluatePromotions is the periodic batch pass. Tiers only move up here;
// demotion happens solely through the dispute path.
func (uc *TrustEscrowUseCase) EvaluatePromotions(ctx context.Context) error {
	vendors, err := uc.vendorRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	promoted := 0

	for _, vendor := range vendors {
		qualified := uc.qualifiedTier(vendor, now)
		if qualified.Rank() <= vendor.Tier.Rank() {
			continue
		}

		logger.Info("Promoting vendor %s: %s -> %s", vendor.ID, vendor.Tier, qualified)
		vendor.Tier = qualified
		if err := uc.vendorRepo.Save(ctx, vendor); err != nil {
			logger.Error("Failed to save promotion for vendor %s: %v", vendor.ID, err)
			continue
		}
		promoted++
	}

	logger.Info("Tier promotion pass complete: %d vendors promoted", promoted)
	return nil
}

func (uc *TrustEscrowUseCase) StartPromotionJob(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := uc.EvaluatePromotions(ctx); err != nil {
					logger.Error("Tier promotion job error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// SetTrustFlag records one side's explicit trust opt-in.
func (uc *TrustEscrowUseCase) SetTrustFlag(ctx context.Context, actor entity.Actor, vendorSide bool, value bool) error {
	rel, err := uc.GetOrCreateRelationship(ctx, actor)
	if err != nil {
		return err
	}

	if vendorSide {
		rel.VendorTrustsBuyer = value
	} else {
		rel.BuyerTrustsVendor = value
	}

	return uc.trustRepo.Save(ctx, rel)
}
