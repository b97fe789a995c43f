package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendora/internal/domain/entity"
	"vendora/pkg/errors"
)

type purchaseFixture struct {
	uc          *PurchaseUseCase
	sessionRepo *memSessionRepo
	txRepo      *memTransactionRepo
	vendorRepo  *memVendorRepo
	trustRepo   *memTrustRepo
	catalog     *fakeCatalog
	gateway     *fakeGateway
	notifier    *fakeNotifier
	limiter     *fakeLimiter
	scheduler   *fakeScheduler
}

func newPurchaseFixture(t *testing.T) *purchaseFixture {
	t.Helper()

	f := &purchaseFixture{
		sessionRepo: newMemSessionRepo(),
		txRepo:      newMemTransactionRepo(),
		vendorRepo:  newMemVendorRepo(),
		trustRepo:   newMemTrustRepo(),
		gateway:     &fakeGateway{},
		notifier:    newFakeNotifier(),
		limiter:     &fakeLimiter{},
		scheduler:   newFakeScheduler(),
	}
	f.catalog = newFakeCatalog("v1", entity.Item{
		SKU: "BG-01", VendorID: "v1", Name: "Ankara tote bag",
		Price: 25000, FloorPrice: 20000, Quantity: 3,
	})

	trustUC := NewTrustEscrowUseCase(f.trustRepo, f.vendorRepo, defaultHoldConfig())
	f.uc = NewPurchaseUseCase(
		f.sessionRepo, f.txRepo, f.vendorRepo, trustUC,
		f.catalog, f.gateway, f.notifier, f.limiter, f.scheduler,
		DefaultPurchaseConfig(),
	)

	require.NoError(t, f.vendorRepo.Save(context.Background(), &entity.VendorProfile{
		ID: "v1", Name: "Ada's Fabrics", Tier: entity.TierNone,
	}))
	return f
}

func (f *purchaseFixture) session() *entity.Session {
	return &entity.Session{BuyerID: "b1", VendorID: "v1", State: entity.StateIdle}
}

func (f *purchaseFixture) item() *entity.Item {
	items, _ := f.catalog.GetInventory(context.Background(), "v1")
	return &items[0]
}

func TestRequestPurchaseCreatesPendingAndLink(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)

	assert.Equal(t, entity.TransactionPending, tx.Status)
	assert.Equal(t, int64(25000), tx.Amount)
	assert.True(t, strings.HasPrefix(tx.Reference, "VND-"))
	assert.Contains(t, tx.PaymentURL, tx.Reference)

	assert.Equal(t, entity.StateAwaitingPayment, session.State)
	assert.Equal(t, tx.Reference, session.PendingPaymentRef)
	assert.True(t, f.scheduler.has("remind:"+tx.Reference))
}

func TestRequestPurchaseUsesNegotiatedPrice(t *testing.T) {
	f := newPurchaseFixture(t)
	session := f.session()

	tx, err := f.uc.RequestPurchase(context.Background(), session, f.item(), "", 22000)
	require.NoError(t, err)
	assert.Equal(t, int64(22000), tx.Amount)
}

func TestRequestPurchaseUsesUnexpiredQuote(t *testing.T) {
	f := newPurchaseFixture(t)
	session := f.session()
	session.LastItemRef = &entity.PriceQuote{
		SKU: "BG-01", Name: "Ankara tote bag", Price: 23000, QuotedAt: time.Now(),
	}

	tx, err := f.uc.RequestPurchase(context.Background(), session, f.item(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(23000), tx.Amount)
}

func TestRequestPurchaseExpiredQuoteFallsBackToCatalog(t *testing.T) {
	f := newPurchaseFixture(t)
	session := f.session()
	session.LastItemRef = &entity.PriceQuote{
		SKU: "BG-01", Name: "Ankara tote bag", Price: 23000,
		QuotedAt: time.Now().Add(-10 * time.Minute),
	}

	tx, err := f.uc.RequestPurchase(context.Background(), session, f.item(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), tx.Amount)
}

func TestRequestPurchaseRejectsSecondPendingPayment(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	first, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)

	second, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	assert.True(t, errors.Is(err, "CONFLICT"))
	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, 1, f.gateway.links)
}

func TestRequestPurchaseCapacityExceeded(t *testing.T) {
	f := newPurchaseFixture(t)
	f.limiter.capped = true

	_, err := f.uc.RequestPurchase(context.Background(), f.session(), f.item(), "", 0)
	assert.True(t, errors.Is(err, "CAPACITY_EXCEEDED"))
	assert.Equal(t, 0, f.gateway.links)
}

func TestApplySettlementMarksPaidAndSchedulesEscrow(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Save(ctx, session))

	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))

	settled, err := f.txRepo.GetByReference(ctx, tx.Reference)
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionPaid, settled.Status)
	require.NotNil(t, settled.EscrowReleaseAt)
	// New vendor, new relationship: 48 hour hold.
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), *settled.EscrowReleaseAt, time.Minute)

	// Stock decremented once.
	assert.Equal(t, 2, f.item().Quantity)

	stored, err := f.sessionRepo.GetByActor(ctx, session.Actor())
	require.NoError(t, err)
	assert.Equal(t, entity.StateAwaitingDeliveryConfirm, stored.State)
	assert.Empty(t, stored.PendingPaymentRef)

	assert.True(t, f.scheduler.has("deliver:"+tx.Reference))
	assert.False(t, f.scheduler.has("remind:"+tx.Reference))
	assert.NotEmpty(t, f.notifier.messagesFor("b1"))
	assert.NotEmpty(t, f.notifier.messagesFor("v1"))
}

func TestApplySettlementIsIdempotent(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Save(ctx, session))

	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))
	buyerMsgs := len(f.notifier.messagesFor("b1"))
	quantity := f.item().Quantity

	// Webhook redelivery.
	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))

	assert.Equal(t, quantity, f.item().Quantity)
	assert.Equal(t, buyerMsgs, len(f.notifier.messagesFor("b1")))
	assert.Equal(t, 0, f.gateway.refundCount())
}

func TestApplySettlementPartialFailureNeverDoubleDecrements(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Save(ctx, session))

	// The vendor lookup fails mid-settlement.
	f.vendorRepo.failNext = errors.Internal("store unavailable", nil)
	require.Error(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))

	// Nothing committed: still pending, stock untouched.
	interrupted, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.Equal(t, entity.TransactionPending, interrupted.Status)
	assert.Equal(t, 3, f.item().Quantity)

	// The redelivered settlement lands cleanly with a single decrement.
	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))
	settled, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.Equal(t, entity.TransactionPaid, settled.Status)
	assert.Equal(t, 2, f.item().Quantity)
}

func TestApplySettlementRejectsBadAmount(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)

	err = f.uc.ApplySettlement(ctx, tx.Reference, 0)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))

	err = f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount-1)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))

	unchanged, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.Equal(t, entity.TransactionPending, unchanged.Status)
}

func TestApplySettlementRefundsWhenSoldOut(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Save(ctx, session))

	// Stock ran out between link and settlement.
	require.NoError(t, f.catalog.DecrementStock(ctx, "v1", "BG-01", 3))

	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))

	refunded, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.Equal(t, entity.TransactionRefunded, refunded.Status)
	assert.Equal(t, "sold out", refunded.RefundReason)
	assert.Equal(t, 1, f.gateway.refundCount())
	assert.Equal(t, 0, f.item().Quantity)

	stored, _ := f.sessionRepo.GetByActor(ctx, session.Actor())
	assert.Equal(t, entity.StateIdle, stored.State)
}

func TestApplySettlementRefundsDuplicate(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	// A payment for the same actor and item settled moments ago.
	now := time.Now()
	require.NoError(t, f.txRepo.Create(ctx, &entity.Transaction{
		Reference: "VND-FIRST", BuyerID: "b1", VendorID: "v1",
		ItemSKU: "BG-01", Amount: 25000,
		Status: entity.TransactionPaid, PaidAt: &now, CreatedAt: now,
	}))

	session := f.session()
	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	// Request is short-circuited by the duplicate guard.
	assert.True(t, errors.Is(err, "CONFLICT"))
	assert.Equal(t, "VND-FIRST", tx.Reference)

	// A second settlement sneaking through anyway gets refunded.
	require.NoError(t, f.txRepo.Create(ctx, &entity.Transaction{
		Reference: "VND-SECOND", BuyerID: "b1", VendorID: "v1",
		ItemSKU: "BG-01", Amount: 25000,
		Status: entity.TransactionPending, CreatedAt: now,
	}))
	require.NoError(t, f.uc.ApplySettlement(ctx, "VND-SECOND", 25000))

	second, _ := f.txRepo.GetByReference(ctx, "VND-SECOND")
	assert.Equal(t, entity.TransactionRefunded, second.Status)
	assert.Equal(t, "duplicate payment", second.RefundReason)
	// No decrement happened for the refunded duplicate.
	assert.Equal(t, 3, f.item().Quantity)
}

func TestDeliveryPromptSkippedForEliteVendor(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	require.NoError(t, f.vendorRepo.Save(ctx, &entity.VendorProfile{
		ID: "v1", Tier: entity.TierElite, CompletedOrders: 300,
	}))

	session := f.session()
	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Save(ctx, session))

	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))

	assert.False(t, f.scheduler.has("deliver:"+tx.Reference))

	// Elite tier: instant release.
	settled, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.WithinDuration(t, time.Now(), *settled.EscrowReleaseAt, time.Minute)
}

func TestConfirmDeliveryRecordsTrust(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Save(ctx, session))
	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))

	require.NoError(t, f.uc.ConfirmDelivery(ctx, tx.Reference))

	confirmed, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.True(t, confirmed.DeliveryConfirmed)
	assert.False(t, f.scheduler.has("deliver:"+tx.Reference))

	rel, err := f.trustRepo.GetByActor(ctx, session.Actor())
	require.NoError(t, err)
	assert.Equal(t, 1, rel.CompletedOrders)
}

func TestDisputeFreezesPayout(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()
	session := f.session()

	tx, err := f.uc.RequestPurchase(ctx, session, f.item(), "", 0)
	require.NoError(t, err)
	require.NoError(t, f.sessionRepo.Save(ctx, session))
	require.NoError(t, f.uc.ApplySettlement(ctx, tx.Reference, tx.Amount))

	require.NoError(t, f.uc.DisputeDelivery(ctx, tx.Reference))

	disputed, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.True(t, disputed.Disputed)
	assert.Nil(t, disputed.EscrowReleaseAt)

	// Frozen transactions never show up in the release sweep.
	require.NoError(t, f.uc.ReleaseDueEscrows(ctx))
	after, _ := f.txRepo.GetByReference(ctx, tx.Reference)
	assert.False(t, after.PayoutReleased)
}

func TestExpirePendingPayments(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.txRepo.Create(ctx, &entity.Transaction{
		Reference: "VND-STALE", BuyerID: "b1", VendorID: "v1",
		ItemSKU: "BG-01", ItemName: "Ankara tote bag", Amount: 25000,
		Status: entity.TransactionPending, CreatedAt: old,
	}))
	require.NoError(t, f.sessionRepo.Save(ctx, &entity.Session{
		BuyerID: "b1", VendorID: "v1",
		State: entity.StateAwaitingPayment, PendingPaymentRef: "VND-STALE",
	}))

	require.NoError(t, f.uc.ExpirePendingPayments(ctx))

	expired, _ := f.txRepo.GetByReference(ctx, "VND-STALE")
	assert.Equal(t, entity.TransactionExpired, expired.Status)

	session, _ := f.sessionRepo.GetByActor(ctx, entity.Actor{BuyerID: "b1", VendorID: "v1"})
	assert.Equal(t, entity.StateIdle, session.State)
	assert.Empty(t, session.PendingPaymentRef)
	assert.Equal(t, int64(-25000), f.limiter.reserved)
}

func TestExpireSkipsObservedSettlements(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	observedAt := time.Now().Add(-90 * time.Minute)
	require.NoError(t, f.txRepo.Create(ctx, &entity.Transaction{
		Reference: "VND-OBS", BuyerID: "b1", VendorID: "v1",
		ItemSKU: "BG-01", ItemName: "Ankara tote bag", Amount: 25000,
		Status: entity.TransactionPending, CreatedAt: old,
		SettlementObservedAt: &observedAt, SettlementAmount: 25000,
	}))

	require.NoError(t, f.uc.ExpirePendingPayments(ctx))

	// The retry sweep owns this one; expiry must not touch it.
	tx, err := f.txRepo.GetByReference(ctx, "VND-OBS")
	require.NoError(t, err)
	assert.Equal(t, entity.TransactionPending, tx.Status)
	assert.Equal(t, int64(0), f.limiter.reserved)
}

func TestReleaseDueEscrows(t *testing.T) {
	f := newPurchaseFixture(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	paid := time.Now().Add(-49 * time.Hour)
	require.NoError(t, f.txRepo.Create(ctx, &entity.Transaction{
		Reference: "VND-DUE", BuyerID: "b1", VendorID: "v1",
		ItemSKU: "BG-01", ItemName: "Ankara tote bag", Amount: 25000,
		Status: entity.TransactionPaid, PaidAt: &paid, EscrowReleaseAt: &past,
	}))

	require.NoError(t, f.uc.ReleaseDueEscrows(ctx))

	released, _ := f.txRepo.GetByReference(ctx, "VND-DUE")
	assert.True(t, released.PayoutReleased)
	assert.NotNil(t, released.ReleasedAt)
	assert.NotEmpty(t, f.notifier.messagesFor("v1"))
}
