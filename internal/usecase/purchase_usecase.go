package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/repository"
	"vendora/internal/domain/service"
	"vendora/pkg/errors"
	"vendora/pkg/logger"
)

// VolumeLimiter is the per-vendor daily payment volume guard.
type VolumeLimiter interface {
	Reserve(ctx context.Context, vendorID string, tier entity.VendorTier, amount int64) (bool, error)
	Release(ctx context.Context, vendorID string, amount int64)
}

// DelayScheduler runs keyed one-shot timers for the payment reminder and the
// deferred delivery prompt.
type DelayScheduler interface {
	After(key string, d time.Duration, fn func())
	Cancel(key string)
}

type PurchaseConfig struct {
	PaymentReminderDelay time.Duration
	PendingPaymentWindow time.Duration
	DeliveryPromptDelay  time.Duration
	DuplicateWindow      time.Duration
}

func DefaultPurchaseConfig() PurchaseConfig {
	return PurchaseConfig{
		PaymentReminderDelay: 15 * time.Minute,
		PendingPaymentWindow: time.Hour,
		DeliveryPromptDelay:  12 * time.Hour,
		DuplicateWindow:      10 * time.Minute,
	}
}

type PurchaseUseCase struct {
	sessionRepo repository.SessionRepository
	txRepo      repository.TransactionRepository
	vendorRepo  repository.VendorRepository
	trustUC     *TrustEscrowUseCase
	catalog     service.Catalog
	gateway     service.PaymentGatewayService
	notifier    service.Notifier
	limiter     VolumeLimiter
	scheduler   DelayScheduler
	config      PurchaseConfig
}

func NewPurchaseUseCase(
	sessionRepo repository.SessionRepository,
	txRepo repository.TransactionRepository,
	vendorRepo repository.VendorRepository,
	trustUC *TrustEscrowUseCase,
	catalog service.Catalog,
	gateway service.PaymentGatewayService,
	notifier service.Notifier,
	limiter VolumeLimiter,
	scheduler DelayScheduler,
	config PurchaseConfig,
) *PurchaseUseCase {
	return &PurchaseUseCase{
		sessionRepo: sessionRepo,
		txRepo:      txRepo,
		vendorRepo:  vendorRepo,
		trustUC:     trustUC,
		catalog:     catalog,
		gateway:     gateway,
		notifier:    notifier,
		limiter:     limiter,
		scheduler:   scheduler,
		config:      config,
	}
}

func newPaymentReference() string {
	return "VND-" + ulid.Make().String()
}

// resolvePrice picks the effective price: an explicit negotiated price wins,
// then an unexpired session quote for the same item, then the catalog price.
func resolvePrice(session *entity.Session, item *entity.Item, negotiated int64, now time.Time) int64 {
	if negotiated > 0 {
		return negotiated
	}
	if q := session.LastItemRef; q != nil && q.SKU == item.SKU && !q.Expired(now) {
		return q.Price
	}
	return item.Price
}

// RequestPurchase creates the pending transaction and payment link for one
// item. Every guard returns a typed outcome the driver turns into a reply.
func (uc *PurchaseUseCase) RequestPurchase(ctx context.Context, session *entity.Session, item *entity.Item, variant string, negotiatedPrice int64) (*entity.Transaction, error) {
	now := time.Now()

	// At most one outstanding payment per actor.
	if session.PendingPaymentRef != "" {
		existing, err := uc.txRepo.GetByReference(ctx, session.PendingPaymentRef)
		if err == nil && existing.Status == entity.TransactionPending {
			return existing, errors.Conflict("Payment already pending")
		}
		// Stale reference; the transaction resolved some other way.
		session.PendingPaymentRef = ""
	}

	amount := resolvePrice(session, item, negotiatedPrice, now)
	if amount <= 0 {
		logger.Alert("Purchase for %s/%s resolved to non-positive amount %d", session.VendorID, item.SKU, amount)
		return nil, errors.BadRequest("Invalid price", nil)
	}

	if !item.InStock() {
		return nil, errors.Conflict("Item sold out")
	}

	// Duplicate guard: an equivalent payment that already settled recently
	// means a retried tap, not a second purchase.
	if dup, err := uc.txRepo.FindRecentPaid(ctx, session.Actor(), item.SKU, now.Add(-uc.config.DuplicateWindow), ""); err == nil {
		return dup, errors.Conflict("Recent payment already settled")
	}

	vendor, err := uc.vendorRepo.GetByID(ctx, session.VendorID)
	if err != nil {
		return nil, err
	}

	ok, err := uc.limiter.Reserve(ctx, vendor.ID, vendor.Tier, amount)
	if err != nil {
		return nil, errors.Internal("Velocity check failed", err)
	}
	if !ok {
		return nil, errors.CapacityExceeded("Vendor daily volume cap reached")
	}

	reference := newPaymentReference()
	tx := &entity.Transaction{
		ID:        reference,
		Reference: reference,
		VendorID:  session.VendorID,
		BuyerID:   session.BuyerID,
		ItemSKU:   item.SKU,
		ItemName:  item.Name,
		Variant:   variant,
		Amount:    amount,
		Status:    entity.TransactionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	link, err := uc.gateway.RequestPaymentLink(ctx, service.PaymentLinkRequest{
		Reference: reference,
		Amount:    amount,
		BuyerID:   session.BuyerID,
		VendorID:  session.VendorID,
		ItemSKU:   item.SKU,
		ItemName:  item.Name,
	})
	if err != nil {
		uc.limiter.Release(ctx, vendor.ID, amount)
		return nil, errors.Internal("Failed to create payment link", err)
	}
	tx.PaymentURL = link.URL

	if err := uc.txRepo.Create(ctx, tx); err != nil {
		uc.limiter.Release(ctx, vendor.ID, amount)
		return nil, err
	}

	session.State = entity.StateAwaitingPayment
	session.PendingPaymentRef = reference
	session.LastItemRef = &entity.PriceQuote{
		SKU:      item.SKU,
		Name:     item.Name,
		Price:    amount,
		QuotedAt: now,
	}
	session.Negotiation = nil
	if err := uc.sessionRepo.Save(ctx, session); err != nil {
		return nil, err
	}

	uc.schedulePaymentReminder(session.BuyerID, reference)

	return tx, nil
}

func (uc *PurchaseUseCase) schedulePaymentReminder(buyerID, reference string) {
	uc.scheduler.After("remind:"+reference, uc.config.PaymentReminderDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tx, err := uc.txRepo.GetByReference(ctx, reference)
		if err != nil || tx.Status != entity.TransactionPending {
			return
		}
		uc.notifier.Send(buyerID, fmt.Sprintf(
			"Still thinking it over? Your payment link for %s is waiting: %s", tx.ItemName, tx.PaymentURL))
	})
}

// RecordObservedSettlement persists the gateway's notification on the
// transaction before the webhook is acknowledged. Once recorded, a failed
// application is recoverable by the settlement retry sweep instead of being
// lost with the gateway's delivery.
func (uc *PurchaseUseCase) RecordObservedSettlement(ctx context.Context, reference string, amount int64) error {
	tx, err := uc.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if tx.Status != entity.TransactionPending || tx.SettlementObservedAt != nil {
		return nil
	}

	now := time.Now()
	tx.SettlementObservedAt = &now
	tx.SettlementAmount = amount
	tx.UpdatedAt = now
	return uc.txRepo.Update(ctx, tx)
}

// UnappliedSettlements lists settlements observed before the cutoff whose
// transaction is still pending.
func (uc *PurchaseUseCase) UnappliedSettlements(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Transaction, error) {
	return uc.txRepo.ListUnappliedSettlements(ctx, cutoff, limit)
}

// ApplySettlement applies one gateway settlement. It is idempotent on the
// reference: a transaction already paid (or refunded) is a no-op, so the
// webhook can be redelivered freely.
func (uc *PurchaseUseCase) ApplySettlement(ctx context.Context, reference string, amount int64) error {
	tx, err := uc.txRepo.GetByReference(ctx, reference)
	if err != nil {
		logger.Alert("Settlement for unknown reference %s", reference)
		return err
	}

	if tx.Status == entity.TransactionPaid || tx.Status == entity.TransactionRefunded {
		logger.Debug("Settlement replay for %s ignored (status=%s)", reference, tx.Status)
		return nil
	}

	if amount <= 0 || amount != tx.Amount {
		logger.Alert("Settlement amount mismatch for %s: got %d want %d", reference, amount, tx.Amount)
		return errors.BadRequest("Settlement amount mismatch", nil)
	}

	now := time.Now()
	actor := tx.Actor()

	// A second settled payment for the same item inside the window means the
	// buyer was charged twice; refund this one.
	if dup, err := uc.txRepo.FindRecentPaid(ctx, actor, tx.ItemSKU, now.Add(-uc.config.DuplicateWindow), reference); err == nil {
		logger.Warn("Duplicate settlement %s duplicates %s; refunding", reference, dup.Reference)
		return uc.refundSettlement(ctx, tx, "duplicate payment",
			"You were charged twice for the same item. The second payment has been refunded.")
	}

	vendor, err := uc.vendorRepo.GetByID(ctx, tx.VendorID)
	if err != nil {
		return err
	}
	rel, err := uc.trustUC.GetOrCreateRelationship(ctx, actor)
	if err != nil {
		return err
	}

	_, releaseAt := uc.trustUC.ResolveHold(vendor, rel, now)

	// The paid transition commits before the decrement: a redelivered
	// settlement replays as a no-op and never reaches the decrement again.
	tx.Status = entity.TransactionPaid
	tx.PaidAt = &now
	tx.EscrowReleaseAt = &releaseAt
	tx.UpdatedAt = now
	if err := uc.txRepo.Update(ctx, tx); err != nil {
		return err
	}

	if err := uc.catalog.DecrementStock(ctx, tx.VendorID, tx.ItemSKU, 1); err != nil {
		if errors.Is(err, "CONFLICT") {
			logger.Warn("Settlement %s arrived after %s sold out; refunding", reference, tx.ItemSKU)
			return uc.refundSettlement(ctx, tx, "sold out",
				fmt.Sprintf("%s sold out before your payment settled. You have been refunded in full.", tx.ItemName))
		}
		logger.Alert("Stock for %s not decremented after settlement %s: %v", tx.ItemSKU, reference, err)
		return err
	}

	uc.scheduler.Cancel("remind:" + reference)

	if err := uc.trustUC.RecordCompletedOrder(ctx, tx.VendorID); err != nil {
		logger.Error("Failed to record completed order for vendor %s: %v", tx.VendorID, err)
	}

	uc.advanceSessionAfterSettlement(ctx, actor, reference)

	// Elite vendors and already-trusted relationships skip the prompt.
	skipPrompt := vendor.Tier == entity.TierElite || rel.Mutual() ||
		rel.Level == entity.TrustTrusted || rel.Level == entity.TrustVIP
	if !skipPrompt {
		uc.scheduleDeliveryPrompt(tx)
	}

	uc.notifier.Send(tx.BuyerID, fmt.Sprintf(
		"Payment confirmed for %s (₦%d). The vendor has been notified.", tx.ItemName, tx.Amount))
	uc.notifier.Send(tx.VendorID, fmt.Sprintf(
		"₦%d received for %s (ref %s). Funds release at %s.",
		tx.Amount, tx.ItemName, tx.Reference, releaseAt.Format(time.RFC3339)))

	return nil
}

func (uc *PurchaseUseCase) refundSettlement(ctx context.Context, tx *entity.Transaction, reason, buyerText string) error {
	if err := uc.gateway.Refund(ctx, tx.Reference, reason); err != nil {
		logger.Alert("Refund failed for %s (%s): %v", tx.Reference, reason, err)
		return errors.Internal("Refund failed", err)
	}

	now := time.Now()
	tx.Status = entity.TransactionRefunded
	tx.RefundReason = reason
	tx.RefundedAt = &now
	tx.UpdatedAt = now
	if err := uc.txRepo.Update(ctx, tx); err != nil {
		return err
	}

	uc.limiter.Release(ctx, tx.VendorID, tx.Amount)
	uc.scheduler.Cancel("remind:" + tx.Reference)
	uc.clearPendingRef(ctx, tx.Actor(), tx.Reference)
	uc.notifier.Send(tx.BuyerID, buyerText)
	return nil
}

func (uc *PurchaseUseCase) advanceSessionAfterSettlement(ctx context.Context, actor entity.Actor, reference string) {
	session, err := uc.sessionRepo.GetByActor(ctx, actor)
	if err != nil {
		return
	}
	if session.PendingPaymentRef != reference && session.PendingPaymentRef != "" {
		return
	}
	session.State = entity.StateAwaitingDeliveryConfirm
	session.PendingPaymentRef = ""
	session.Negotiation = nil
	if err := uc.sessionRepo.Save(ctx, session); err != nil {
		logger.Error("Failed to advance session %s after settlement: %v", actor.Key(), err)
	}
}

func (uc *PurchaseUseCase) clearPendingRef(ctx context.Context, actor entity.Actor, reference string) {
	session, err := uc.sessionRepo.GetByActor(ctx, actor)
	if err != nil || session.PendingPaymentRef != reference {
		return
	}
	session.PendingPaymentRef = ""
	session.State = entity.StateIdle
	if err := uc.sessionRepo.Save(ctx, session); err != nil {
		logger.Error("Failed to clear pending ref for %s: %v", actor.Key(), err)
	}
}

func (uc *PurchaseUseCase) scheduleDeliveryPrompt(tx *entity.Transaction) {
	buyerID, itemName, reference := tx.BuyerID, tx.ItemName, tx.Reference
	uc.scheduler.After("deliver:"+reference, uc.config.DeliveryPromptDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		current, err := uc.txRepo.GetByReference(ctx, reference)
		if err != nil || current.Status != entity.TransactionPaid || current.DeliveryConfirmed {
			return
		}
		uc.notifier.Send(buyerID, fmt.Sprintf(
			"Quick check: did you receive %s? Reply yes or no.", itemName))
	})
}

// ConfirmDelivery records the buyer's yes to the delivery prompt and feeds
// the trust recomputation. The escrow schedule is left as resolved at
// settlement time.
func (uc *PurchaseUseCase) ConfirmDelivery(ctx context.Context, reference string) error {
	tx, err := uc.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if tx.Status != entity.TransactionPaid {
		return errors.BadRequest("Transaction is not paid", nil)
	}
	if tx.DeliveryConfirmed {
		return nil
	}

	tx.DeliveryConfirmed = true
	tx.UpdatedAt = time.Now()
	if err := uc.txRepo.Update(ctx, tx); err != nil {
		return err
	}

	uc.scheduler.Cancel("deliver:" + reference)

	if err := uc.trustUC.RecordDeliveryOutcome(ctx, tx.Actor(), true); err != nil {
		logger.Error("Failed to record delivery outcome for %s: %v", reference, err)
	}

	uc.notifier.Send(tx.VendorID, fmt.Sprintf("Buyer confirmed delivery of %s (ref %s).", tx.ItemName, tx.Reference))
	return nil
}

// DisputeDelivery records the buyer's no. The payout is frozen until an
// operator resolves the dispute.
func (uc *PurchaseUseCase) DisputeDelivery(ctx context.Context, reference string) error {
	tx, err := uc.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if tx.Status != entity.TransactionPaid {
		return errors.BadRequest("Transaction is not paid", nil)
	}
	if tx.Disputed {
		return nil
	}

	tx.Disputed = true
	tx.EscrowReleaseAt = nil
	tx.UpdatedAt = time.Now()
	if err := uc.txRepo.Update(ctx, tx); err != nil {
		return err
	}

	uc.scheduler.Cancel("deliver:" + reference)

	if err := uc.trustUC.RecordDeliveryOutcome(ctx, tx.Actor(), false); err != nil {
		logger.Error("Failed to record dispute outcome for %s: %v", reference, err)
	}

	logger.Alert("Delivery dispute opened on %s (%s -> %s, ₦%d)", reference, tx.BuyerID, tx.VendorID, tx.Amount)
	uc.notifier.Send(tx.VendorID, fmt.Sprintf(
		"The buyer reports not receiving %s (ref %s). Payout is on hold pending review.", tx.ItemName, tx.Reference))
	return nil
}

// Transaction looks up a payment attempt by its gateway reference.
func (uc *PurchaseUseCase) Transaction(ctx context.Context, reference string) (*entity.Transaction, error) {
	return uc.txRepo.GetByReference(ctx, reference)
}

// LatestForActor returns the actor's most recently updated paid transaction,
// used by the driver to resolve a bare yes/no in awaiting_delivery_confirm.
func (uc *PurchaseUseCase) LatestForActor(ctx context.Context, actor entity.Actor) (*entity.Transaction, error) {
	txs, _, err := uc.txRepo.List(ctx, map[string]interface{}{
		"buyerId":  actor.BuyerID,
		"vendorId": actor.VendorID,
		"status":   string(entity.TransactionPaid),
	}, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, errors.NotFound("Transaction", nil)
	}
	latest := txs[0]
	for _, tx := range txs[1:] {
		if tx.UpdatedAt.After(latest.UpdatedAt) {
			latest = tx
		}
	}
	return latest, nil
}

// ExpirePendingPayments flips stale pending transactions to expired and
// returns their sessions to idle.
func (uc *PurchaseUseCase) ExpirePendingPayments(ctx context.Context) error {
	cutoff := time.Now().Add(-uc.config.PendingPaymentWindow)
	stale, err := uc.txRepo.ListPendingOlderThan(ctx, cutoff, 100)
	if err != nil {
		return err
	}

	expired := 0
	for _, tx := range stale {
		if tx.SettlementObservedAt != nil {
			// An acknowledged settlement is in flight; the retry sweep
			// owns this transaction.
			continue
		}
		tx.Status = entity.TransactionExpired
		tx.UpdatedAt = time.Now()
		if err := uc.txRepo.Update(ctx, tx); err != nil {
			logger.Error("Failed to expire transaction %s: %v", tx.Reference, err)
			continue
		}
		expired++

		uc.limiter.Release(ctx, tx.VendorID, tx.Amount)
		uc.scheduler.Cancel("remind:" + tx.Reference)
		uc.clearPendingRef(ctx, tx.Actor(), tx.Reference)
		uc.notifier.Send(tx.BuyerID, fmt.Sprintf(
			"Your payment link for %s expired. Message the vendor again if you still want it.", tx.ItemName))
	}

	if expired > 0 {
		logger.Info("Expired %d stale pending payments", expired)
	}
	return nil
}

// ReleaseDueEscrows releases payouts whose hold has elapsed.
func (uc *PurchaseUseCase) ReleaseDueEscrows(ctx context.Context) error {
	due, err := uc.txRepo.ListDueForRelease(ctx, time.Now(), 100)
	if err != nil {
		return err
	}

	for _, tx := range due {
		now := time.Now()
		tx.PayoutReleased = true
		tx.ReleasedAt = &now
		tx.UpdatedAt = now
		if err := uc.txRepo.Update(ctx, tx); err != nil {
			logger.Error("Failed to release escrow for %s: %v", tx.Reference, err)
			continue
		}
		uc.notifier.Send(tx.VendorID, fmt.Sprintf(
			"₦%d for %s (ref %s) has been released to your balance.", tx.Amount, tx.ItemName, tx.Reference))
	}

	if len(due) > 0 {
		logger.Info("Released %d due escrows", len(due))
	}
	return nil
}

// ReleaseEscrowNow is the operator override for a single transaction.
func (uc *PurchaseUseCase) ReleaseEscrowNow(ctx context.Context, reference string) error {
	tx, err := uc.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if tx.Status != entity.TransactionPaid {
		return errors.BadRequest("Transaction is not paid", nil)
	}
	if tx.PayoutReleased {
		return nil
	}

	now := time.Now()
	tx.PayoutReleased = true
	tx.ReleasedAt = &now
	tx.Disputed = false
	tx.UpdatedAt = now
	if err := uc.txRepo.Update(ctx, tx); err != nil {
		return err
	}

	uc.notifier.Send(tx.VendorID, fmt.Sprintf(
		"₦%d for %s (ref %s) has been released to your balance.", tx.Amount, tx.ItemName, tx.Reference))
	return nil
}

// RefundTransaction is the operator path for resolving a dispute in the
// buyer's favor.
func (uc *PurchaseUseCase) RefundTransaction(ctx context.Context, reference, reason string) error {
	tx, err := uc.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	if tx.Status != entity.TransactionPaid {
		return errors.BadRequest("Transaction is not paid", nil)
	}
	if tx.PayoutReleased {
		return errors.Conflict("Payout already released")
	}

	return uc.refundSettlement(ctx, tx, reason, fmt.Sprintf(
		"Your payment for %s (ref %s) has been refunded.", tx.ItemName, tx.Reference))
}

// VerifyAndSettle reconciles a reference against the gateway out of band and
// applies the settlement if the gateway reports success.
func (uc *PurchaseUseCase) VerifyAndSettle(ctx context.Context, reference string) error {
	status, err := uc.gateway.Verify(ctx, reference)
	if err != nil {
		return errors.Internal("Gateway verify failed", err)
	}
	if status != service.PaymentStatusSuccess {
		return errors.BadRequest(fmt.Sprintf("Gateway reports status %s", status), nil)
	}

	tx, err := uc.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return err
	}
	return uc.ApplySettlement(ctx, reference, tx.Amount)
}
