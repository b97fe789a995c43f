package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/service"
	"vendora/pkg/errors"
)

// In-memory repository fakes shared by the usecase tests.

type memTrustRepo struct {
	mu   sync.Mutex
	rels map[string]*entity.TrustRelationship
}

func newMemTrustRepo() *memTrustRepo {
	return &memTrustRepo{rels: make(map[string]*entity.TrustRelationship)}
}

func (r *memTrustRepo) GetByActor(ctx context.Context, actor entity.Actor) (*entity.TrustRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rel, ok := r.rels[actor.Key()]
	if !ok {
		return nil, errors.NotFound("Trust relationship", nil)
	}
	cp := *rel
	return &cp, nil
}

func (r *memTrustRepo) Save(ctx context.Context, rel *entity.TrustRelationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	actor := entity.Actor{BuyerID: rel.BuyerID, VendorID: rel.VendorID}
	cp := *rel
	r.rels[actor.Key()] = &cp
	return nil
}

type memVendorRepo struct {
	mu       sync.Mutex
	vendors  map[string]*entity.VendorProfile
	failNext error // returned by the next GetByID, once
}

func newMemVendorRepo() *memVendorRepo {
	return &memVendorRepo{vendors: make(map[string]*entity.VendorProfile)}
}

func (r *memVendorRepo) GetByID(ctx context.Context, vendorID string) (*entity.VendorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return nil, err
	}
	vendor, ok := r.vendors[vendorID]
	if !ok {
		return nil, errors.NotFound("Vendor", nil)
	}
	cp := *vendor
	return &cp, nil
}

func (r *memVendorRepo) Save(ctx context.Context, vendor *entity.VendorProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *vendor
	r.vendors[vendor.ID] = &cp
	return nil
}

func (r *memVendorRepo) ListAll(ctx context.Context) ([]*entity.VendorProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.VendorProfile, 0, len(r.vendors))
	for _, v := range r.vendors {
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*entity.Session)}
}

func (r *memSessionRepo) GetByActor(ctx context.Context, actor entity.Actor) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[actor.Key()]
	if !ok {
		return nil, errors.NotFound("Session", nil)
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Save(ctx context.Context, session *entity.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	actor := entity.Actor{BuyerID: session.BuyerID, VendorID: session.VendorID}
	cp := *session
	r.sessions[actor.Key()] = &cp
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, actor entity.Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, actor.Key())
	return nil
}

type memTransactionRepo struct {
	mu  sync.Mutex
	txs map[string]*entity.Transaction
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{txs: make(map[string]*entity.Transaction)}
}

func (r *memTransactionRepo) Create(ctx context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.txs[tx.Reference]; exists {
		return errors.Conflict("Transaction already exists")
	}
	cp := *tx
	r.txs[tx.Reference] = &cp
	return nil
}

func (r *memTransactionRepo) GetByReference(ctx context.Context, reference string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[reference]
	if !ok {
		return nil, errors.NotFound("Transaction", nil)
	}
	cp := *tx
	return &cp, nil
}

func (r *memTransactionRepo) Update(ctx context.Context, tx *entity.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.txs[tx.Reference] = &cp
	return nil
}

func (r *memTransactionRepo) List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]*entity.Transaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.Transaction, 0, len(r.txs))
	for _, tx := range r.txs {
		cp := *tx
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *memTransactionRepo) FindRecentPaid(ctx context.Context, actor entity.Actor, itemSKU string, since time.Time, excludeRef string) (*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.Reference == excludeRef || tx.Status != entity.TransactionPaid {
			continue
		}
		if tx.BuyerID != actor.BuyerID || tx.VendorID != actor.VendorID || tx.ItemSKU != itemSKU {
			continue
		}
		if tx.PaidAt != nil && !tx.PaidAt.Before(since) {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, errors.NotFound("Transaction", nil)
}

func (r *memTransactionRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Transaction
	for _, tx := range r.txs {
		if tx.Status == entity.TransactionPending && tx.CreatedAt.Before(cutoff) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Transaction
	for _, tx := range r.txs {
		if tx.Status == entity.TransactionPaid && !tx.PayoutReleased &&
			tx.EscrowReleaseAt != nil && !tx.EscrowReleaseAt.After(now) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTransactionRepo) ListUnappliedSettlements(ctx context.Context, cutoff time.Time, limit int) ([]*entity.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Transaction
	for _, tx := range r.txs {
		if tx.Status == entity.TransactionPending &&
			tx.SettlementObservedAt != nil && tx.SettlementObservedAt.Before(cutoff) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeCatalog serves a fixed item list and records stock decrements.
type fakeCatalog struct {
	mu    sync.Mutex
	items map[string][]entity.Item // vendorID -> items
}

func newFakeCatalog(vendorID string, items ...entity.Item) *fakeCatalog {
	return &fakeCatalog{items: map[string][]entity.Item{vendorID: items}}
}

func (c *fakeCatalog) GetInventory(ctx context.Context, vendorID string) ([]entity.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entity.Item(nil), c.items[vendorID]...), nil
}

func (c *fakeCatalog) DecrementStock(ctx context.Context, vendorID, sku string, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.items[vendorID]
	for i := range items {
		if items[i].SKU != sku {
			continue
		}
		if items[i].Quantity < n {
			return errors.Conflict("Insufficient stock")
		}
		items[i].Quantity -= n
		return nil
	}
	return errors.NotFound("Item", nil)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]string // recipientID -> messages
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[string][]string)}
}

func (n *fakeNotifier) Send(recipientID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[recipientID] = append(n.sent[recipientID], text)
}

func (n *fakeNotifier) messagesFor(recipientID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent[recipientID]...)
}

type fakeGateway struct {
	mu      sync.Mutex
	refunds []string
	links   int
}

func (g *fakeGateway) RequestPaymentLink(ctx context.Context, req service.PaymentLinkRequest) (*service.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.links++
	return &service.PaymentLink{
		Reference: req.Reference,
		URL:       "https://checkout.test/" + req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (service.PaymentStatus, error) {
	return service.PaymentStatusSuccess, nil
}

func (g *fakeGateway) Refund(ctx context.Context, reference string, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, reference)
	return nil
}

func (g *fakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return true
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

// fakeLimiter approves everything unless capped is set.
type fakeLimiter struct {
	mu       sync.Mutex
	capped   bool
	reserved int64
}

func (l *fakeLimiter) Reserve(ctx context.Context, vendorID string, tier entity.VendorTier, amount int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.capped {
		return false, nil
	}
	l.reserved += amount
	return true, nil
}

func (l *fakeLimiter) Release(ctx context.Context, vendorID string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reserved -= amount
}

// fakeScheduler records scheduled keys without arming real timers.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled map[string]func()
	canceled  []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{scheduled: make(map[string]func())}
}

func (s *fakeScheduler) After(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[key] = fn
}

func (s *fakeScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, key)
	s.canceled = append(s.canceled, key)
}

func (s *fakeScheduler) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scheduled[key]
	return ok
}

// fakeClassifier returns scripted intents and delegates offer parsing to the
// deterministic rules the production classifier shares.
type fakeClassifier struct {
	intent service.Intent
	offer  int64
	accept bool
}

func (c *fakeClassifier) Classify(ctx context.Context, text string, sc service.SessionContext) (service.Intent, error) {
	return c.intent, nil
}

func (c *fakeClassifier) ExtractOffer(text string) int64 { return c.offer }

func (c *fakeClassifier) AcceptSignal(text string) bool { return c.accept }

func (c *fakeClassifier) MatchProducts(ctx context.Context, text string, items []entity.Item) ([]entity.Item, error) {
	lower := strings.ToLower(text)
	var out []entity.Item
	for _, it := range items {
		if strings.Contains(text, it.SKU) {
			out = append(out, it)
			continue
		}
		for _, word := range strings.Fields(strings.ToLower(it.Name)) {
			if len(word) >= 4 && strings.Contains(lower, word) {
				out = append(out, it)
				break
			}
		}
	}
	return out, nil
}
