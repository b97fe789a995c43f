package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"vendora/internal/domain/entity"
	"vendora/internal/domain/repository"
	"vendora/internal/domain/service"
	"vendora/internal/infrastructure/actorqueue"
	"vendora/pkg/errors"
	"vendora/pkg/logger"
)

// ConversationUseCase drives one buyer-vendor conversation. All mutation of a
// session happens inside the actor queue, so handlers never race on it.
type ConversationUseCase struct {
	queue       *actorqueue.Queue
	sessionRepo repository.SessionRepository
	vendorRepo  repository.VendorRepository
	catalog     service.Catalog
	classifier  service.Classifier
	notifier    service.Notifier
	purchaseUC  *PurchaseUseCase
}

func NewConversationUseCase(
	queue *actorqueue.Queue,
	sessionRepo repository.SessionRepository,
	vendorRepo repository.VendorRepository,
	catalog service.Catalog,
	classifier service.Classifier,
	notifier service.Notifier,
	purchaseUC *PurchaseUseCase,
) *ConversationUseCase {
	return &ConversationUseCase{
		queue:       queue,
		sessionRepo: sessionRepo,
		vendorRepo:  vendorRepo,
		catalog:     catalog,
		classifier:  classifier,
		notifier:    notifier,
		purchaseUC:  purchaseUC,
	}
}

// settlementRetryAge is how long an observed settlement may sit unapplied
// before the retry sweep picks it up.
const settlementRetryAge = time.Minute

// EnqueueInbound pushes one buyer message through the actor queue. The task
// runs after this call returns, under the queue's own context. Failures are
// absorbed here: the buyer gets a plain retry message and the queue keeps
// draining.
func (uc *ConversationUseCase) EnqueueInbound(actor entity.Actor, text string) {
	uc.queue.Enqueue(actor.Key(), func(taskCtx context.Context) {
		if err := uc.HandleInbound(taskCtx, actor, text); err != nil {
			logger.Error("Inbound handling failed: actor=%s err=%v", actor.Key(), err)
			uc.notifier.Send(actor.BuyerID, "Sorry, something went wrong on our side. Please try that again.")
		}
	})
}

// EnqueueSettlement routes a gateway settlement through the same per-actor
// queue as conversation events, so it can never interleave with a handler
// mid-flight for that actor. The observation is persisted before this
// returns; once the caller acks the webhook, a failed application is
// recovered by RetrySettlements rather than lost.
func (uc *ConversationUseCase) EnqueueSettlement(ctx context.Context, reference string, amount int64) error {
	tx, err := uc.purchaseUC.Transaction(ctx, reference)
	if err != nil {
		logger.Alert("Settlement for unknown reference %s", reference)
		return err
	}
	if tx.Status == entity.TransactionPaid || tx.Status == entity.TransactionRefunded {
		logger.Debug("Settlement replay for %s ignored (status=%s)", reference, tx.Status)
		return nil
	}

	if err := uc.purchaseUC.RecordObservedSettlement(ctx, reference, amount); err != nil {
		return err
	}

	uc.queue.Enqueue(tx.Actor().Key(), func(taskCtx context.Context) {
		if err := uc.purchaseUC.ApplySettlement(taskCtx, reference, amount); err != nil {
			logger.Error("Settlement failed: ref=%s err=%v", reference, err)
		}
	})
	return nil
}

// RetrySettlements re-enqueues settlements that were acknowledged to the
// gateway but are still unapplied, such as after a transient store failure
// or a restart between ack and application.
func (uc *ConversationUseCase) RetrySettlements(ctx context.Context) error {
	stale, err := uc.purchaseUC.UnappliedSettlements(ctx, time.Now().Add(-settlementRetryAge), 100)
	if err != nil {
		return err
	}

	for _, tx := range stale {
		reference, amount := tx.Reference, tx.SettlementAmount
		uc.queue.Enqueue(tx.Actor().Key(), func(taskCtx context.Context) {
			if err := uc.purchaseUC.ApplySettlement(taskCtx, reference, amount); err != nil {
				logger.Error("Settlement retry failed: ref=%s err=%v", reference, err)
			}
		})
	}

	if len(stale) > 0 {
		logger.Info("Re-enqueued %d unapplied settlements", len(stale))
	}
	return nil
}

// HandleInbound is the state machine: classify, dispatch on (state, intent),
// persist the session, reply.
func (uc *ConversationUseCase) HandleInbound(ctx context.Context, actor entity.Actor, text string) error {
	session, err := uc.loadOrCreateSession(ctx, actor)
	if err != nil {
		return err
	}

	sc := service.SessionContext{
		State:       session.State,
		Negotiating: session.Negotiation != nil,
	}
	if session.LastItemRef != nil {
		sc.LastItemName = session.LastItemRef.Name
	}

	intent, err := uc.classifier.Classify(ctx, text, sc)
	if err != nil {
		// The classifier degrades internally; an error here is unexpected.
		logger.Warn("Classifier error for %s, treating as OTHER: %v", actor.Key(), err)
		intent = service.IntentOther
	}

	switch intent {
	case service.IntentIgnore:
		return nil
	case service.IntentCancel:
		return uc.handleCancel(ctx, session)
	}

	switch session.State {
	case entity.StateSelectingItem:
		return uc.handleSelectingItem(ctx, session, intent, text)
	case entity.StateSelectingVariant:
		return uc.handleSelectingVariant(ctx, session, text)
	case entity.StateVariantReady:
		return uc.handleVariantReady(ctx, session, intent, text)
	case entity.StateNegotiating:
		return uc.handleNegotiating(ctx, session, intent, text)
	case entity.StateAwaitingPayment:
		return uc.handleAwaitingPayment(ctx, session, intent, text)
	case entity.StateAwaitingDeliveryConfirm:
		return uc.handleAwaitingDelivery(ctx, session, intent, text)
	default:
		return uc.handleOpen(ctx, session, intent, text)
	}
}

func (uc *ConversationUseCase) loadOrCreateSession(ctx context.Context, actor entity.Actor) (*entity.Session, error) {
	session, err := uc.sessionRepo.GetByActor(ctx, actor)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		return nil, err
	}

	vendor, err := uc.vendorRepo.GetByID(ctx, actor.VendorID)
	if err != nil {
		return nil, err
	}

	session = &entity.Session{
		BuyerID:   actor.BuyerID,
		VendorID:  actor.VendorID,
		State:     entity.StateIdle,
		Policy:    vendor.Policy,
		CreatedAt: time.Now(),
	}
	if err := uc.sessionRepo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (uc *ConversationUseCase) save(ctx context.Context, session *entity.Session) error {
	session.UpdatedAt = time.Now()
	return uc.sessionRepo.Save(ctx, session)
}

func (uc *ConversationUseCase) reply(session *entity.Session, text string) {
	uc.notifier.Send(session.BuyerID, text)
}

func (uc *ConversationUseCase) handleCancel(ctx context.Context, session *entity.Session) error {
	session.Reset()
	if err := uc.save(ctx, session); err != nil {
		return err
	}
	uc.reply(session, "No problem, I've cleared that. Ask me about anything else whenever you're ready.")
	return nil
}

// handleOpen covers idle and querying: the buyer is browsing or has just been
// quoted a single item.
func (uc *ConversationUseCase) handleOpen(ctx context.Context, session *entity.Session, intent service.Intent, text string) error {
	switch intent {
	case service.IntentQuery:
		return uc.handleQuery(ctx, session, text)
	case service.IntentNegotiate:
		return uc.startOrContinueNegotiation(ctx, session, text)
	case service.IntentPurchase, service.IntentConfirm:
		if session.LastItemRef == nil {
			uc.reply(session, "Which item would you like? Tell me the name and I'll check for you.")
			return nil
		}
		return uc.beginPurchase(ctx, session, "", 0)
	default:
		uc.reply(session, "I can help you find items, check prices, or sort out payment. What are you looking for?")
		return nil
	}
}

func (uc *ConversationUseCase) handleQuery(ctx context.Context, session *entity.Session, text string) error {
	items, err := uc.catalog.GetInventory(ctx, session.VendorID)
	if err != nil {
		return err
	}

	matches, err := uc.classifier.MatchProducts(ctx, text, items)
	if err != nil {
		return err
	}

	switch len(matches) {
	case 0:
		session.State = entity.StateQuerying
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		uc.reply(session, "I couldn't find that one. Could you describe it differently, or ask what's in stock?")
		return nil
	case 1:
		return uc.quoteItem(ctx, session, &matches[0])
	default:
		session.State = entity.StateSelectingItem
		session.Candidates = session.Candidates[:0]
		for _, m := range matches {
			session.Candidates = append(session.Candidates, entity.ItemCandidate{
				SKU: m.SKU, Name: m.Name, Price: m.Price,
			})
		}
		if err := uc.save(ctx, session); err != nil {
			return err
		}

		var b strings.Builder
		b.WriteString("I found a few options:\n")
		for i, c := range session.Candidates {
			fmt.Fprintf(&b, "%d. %s - ₦%d\n", i+1, c.Name, c.Price)
		}
		b.WriteString("Which one? Reply with the number or the name.")
		uc.reply(session, b.String())
		return nil
	}
}

// quoteItem records the price quote and either prompts for variants or
// invites purchase/negotiation.
func (uc *ConversationUseCase) quoteItem(ctx context.Context, session *entity.Session, item *entity.Item) error {
	if !item.InStock() {
		session.State = entity.StateQuerying
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		uc.reply(session, fmt.Sprintf("%s is sold out right now. Want me to check something else?", item.Name))
		return nil
	}

	session.LastItemRef = &entity.PriceQuote{
		SKU:      item.SKU,
		Name:     item.Name,
		Price:    item.Price,
		QuotedAt: time.Now(),
	}
	session.Candidates = nil
	session.Negotiation = nil

	if item.HasVariants() {
		session.State = entity.StateSelectingVariant
		session.VariantSelection = make(map[string]string)
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		uc.reply(session, fmt.Sprintf("%s is ₦%d. %s", item.Name, item.Price, variantPrompt(item, session.VariantSelection)))
		return nil
	}

	session.State = entity.StateQuerying
	session.VariantSelection = nil
	if err := uc.save(ctx, session); err != nil {
		return err
	}
	uc.reply(session, fmt.Sprintf("%s is ₦%d. Shall I send you a payment link?", item.Name, item.Price))
	return nil
}

func variantPrompt(item *entity.Item, chosen map[string]string) string {
	attrs := make([]string, 0, len(item.Variants))
	for attr := range item.Variants {
		if _, ok := chosen[attr]; !ok {
			attrs = append(attrs, attr)
		}
	}
	sort.Strings(attrs)
	if len(attrs) == 0 {
		return "Ready when you are."
	}

	attr := attrs[0]
	return fmt.Sprintf("Which %s? Options: %s.", attr, strings.Join(item.Variants[attr], ", "))
}

func (uc *ConversationUseCase) handleSelectingItem(ctx context.Context, session *entity.Session, intent service.Intent, text string) error {
	if intent == service.IntentQuery {
		// The buyer changed their mind about what to look for.
		return uc.handleQuery(ctx, session, text)
	}

	chosen := pickCandidate(session.Candidates, text)
	if chosen == nil {
		uc.reply(session, "I didn't catch which one you meant. Reply with the number from the list.")
		return nil
	}

	item, err := uc.findItem(ctx, session.VendorID, chosen.SKU)
	if err != nil {
		return err
	}
	return uc.quoteItem(ctx, session, item)
}

// pickCandidate resolves the buyer's reply against the pending candidate
// list: list position, SKU, or name substring.
func pickCandidate(candidates []entity.ItemCandidate, text string) *entity.ItemCandidate {
	trimmed := strings.TrimSpace(text)

	if n, err := strconv.Atoi(trimmed); err == nil {
		if n >= 1 && n <= len(candidates) {
			return &candidates[n-1]
		}
		return nil
	}

	lower := strings.ToLower(trimmed)
	for i := range candidates {
		if strings.EqualFold(candidates[i].SKU, trimmed) {
			return &candidates[i]
		}
		if strings.Contains(lower, strings.ToLower(candidates[i].Name)) ||
			strings.Contains(strings.ToLower(candidates[i].Name), lower) {
			return &candidates[i]
		}
	}
	return nil
}

func (uc *ConversationUseCase) handleSelectingVariant(ctx context.Context, session *entity.Session, text string) error {
	if session.LastItemRef == nil {
		return uc.resetWithApology(ctx, session)
	}

	item, err := uc.findItem(ctx, session.VendorID, session.LastItemRef.SKU)
	if err != nil {
		return err
	}

	if session.VariantSelection == nil {
		session.VariantSelection = make(map[string]string)
	}

	matched := matchVariantValues(item, session.VariantSelection, text)
	if !matched {
		uc.reply(session, variantPrompt(item, session.VariantSelection))
		return nil
	}

	if len(session.VariantSelection) == len(item.Variants) {
		session.State = entity.StateVariantReady
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		uc.reply(session, fmt.Sprintf("%s (%s) at ₦%d. Shall I send the payment link?",
			item.Name, variantSummary(session.VariantSelection), session.LastItemRef.Price))
		return nil
	}

	if err := uc.save(ctx, session); err != nil {
		return err
	}
	uc.reply(session, variantPrompt(item, session.VariantSelection))
	return nil
}

// matchVariantValues scans the text for values of any unchosen attribute and
// records matches. Returns true if at least one attribute was filled.
func matchVariantValues(item *entity.Item, chosen map[string]string, text string) bool {
	lower := strings.ToLower(text)
	matched := false

	for attr, values := range item.Variants {
		if _, ok := chosen[attr]; ok {
			continue
		}
		for _, v := range values {
			if strings.Contains(lower, strings.ToLower(v)) {
				chosen[attr] = v
				matched = true
				break
			}
		}
	}
	return matched
}

func variantSummary(chosen map[string]string) string {
	attrs := make([]string, 0, len(chosen))
	for attr := range chosen {
		attrs = append(attrs, attr)
	}
	sort.Strings(attrs)

	parts := make([]string, 0, len(attrs))
	for _, attr := range attrs {
		parts = append(parts, fmt.Sprintf("%s: %s", attr, chosen[attr]))
	}
	return strings.Join(parts, ", ")
}

func (uc *ConversationUseCase) handleVariantReady(ctx context.Context, session *entity.Session, intent service.Intent, text string) error {
	switch intent {
	case service.IntentPurchase, service.IntentConfirm:
		return uc.beginPurchase(ctx, session, variantSummary(session.VariantSelection), 0)
	case service.IntentNegotiate:
		return uc.startOrContinueNegotiation(ctx, session, text)
	case service.IntentQuery:
		return uc.handleQuery(ctx, session, text)
	default:
		if uc.classifier.AcceptSignal(text) {
			return uc.beginPurchase(ctx, session, variantSummary(session.VariantSelection), 0)
		}
		uc.reply(session, "Say the word and I'll send the payment link, or make me an offer.")
		return nil
	}
}

func (uc *ConversationUseCase) startOrContinueNegotiation(ctx context.Context, session *entity.Session, text string) error {
	if session.LastItemRef == nil {
		uc.reply(session, "Happy to talk price once we've settled on an item. What are you after?")
		return nil
	}

	item, err := uc.findItem(ctx, session.VendorID, session.LastItemRef.SKU)
	if err != nil {
		return err
	}

	signal := BuyerSignal{Accept: uc.classifier.AcceptSignal(text)}
	if offer := uc.classifier.ExtractOffer(text); offer > 0 {
		signal.Offer = offer
		signal.Present = true
	}

	decision := Negotiate(session.Negotiation, signal, item.Price, item.FloorPrice, session.Policy)

	if decision.Escalate {
		logger.Info("Negotiation escalated to vendor %s for %s", session.VendorID, session.BuyerID)
		uc.notifier.Send(session.VendorID, fmt.Sprintf(
			"%s is negotiating on %s (offer: ₦%d). Reply to take over.", session.BuyerID, item.Name, signal.Offer))
	}

	switch decision.Action {
	case ActionAccept:
		return uc.beginPurchase(ctx, session, variantSummary(session.VariantSelection), decision.AcceptPrice)
	case ActionReprompt:
		uc.reply(session, fmt.Sprintf("Give me a number and let's see. I can do ₦%d on %s.", decision.Next.CounterPrice, item.Name))
		return nil
	default:
		next := decision.Next
		session.Negotiation = &next
		session.State = entity.StateNegotiating
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		uc.reply(session, counterReply(decision, item.Name))
		return nil
	}
}

func counterReply(decision NegotiationDecision, itemName string) string {
	price := decision.Next.CounterPrice
	switch decision.ReplyKind {
	case ReplyPushBack:
		return fmt.Sprintf("You're close! Meet me at ₦%d for %s and it's yours.", price, itemName)
	case ReplyHoldFirm:
		return fmt.Sprintf("₦%d is the best I can do on %s. Take it?", price, itemName)
	case ReplyFixedPrice:
		return fmt.Sprintf("%s is fixed at ₦%d, no haggling on this one.", itemName, price)
	default:
		return fmt.Sprintf("How about ₦%d for %s?", price, itemName)
	}
}

func (uc *ConversationUseCase) handleNegotiating(ctx context.Context, session *entity.Session, intent service.Intent, text string) error {
	switch intent {
	case service.IntentQuery:
		return uc.handleQuery(ctx, session, text)
	case service.IntentPurchase, service.IntentConfirm:
		// Treat as acceptance of the standing counter.
		if session.Negotiation != nil && session.LastItemRef != nil {
			item, err := uc.findItem(ctx, session.VendorID, session.LastItemRef.SKU)
			if err != nil {
				return err
			}
			price := FloorAboveMin(session.Negotiation.CounterPrice, item.FloorPrice)
			return uc.beginPurchase(ctx, session, variantSummary(session.VariantSelection), price)
		}
		return uc.beginPurchase(ctx, session, variantSummary(session.VariantSelection), 0)
	default:
		return uc.startOrContinueNegotiation(ctx, session, text)
	}
}

func (uc *ConversationUseCase) handleAwaitingPayment(ctx context.Context, session *entity.Session, intent service.Intent, text string) error {
	if session.PendingPaymentRef == "" {
		// Settlement already advanced or cleared the session elsewhere.
		session.State = entity.StateIdle
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		return uc.handleOpen(ctx, session, intent, text)
	}

	tx, err := uc.purchaseUC.Transaction(ctx, session.PendingPaymentRef)
	if err == nil && tx.Status == entity.TransactionPending {
		uc.reply(session, fmt.Sprintf("Your payment link for %s is still active: %s", tx.ItemName, tx.PaymentURL))
		return nil
	}

	session.PendingPaymentRef = ""
	session.State = entity.StateIdle
	if err := uc.save(ctx, session); err != nil {
		return err
	}
	return uc.handleOpen(ctx, session, intent, text)
}

func (uc *ConversationUseCase) handleAwaitingDelivery(ctx context.Context, session *entity.Session, intent service.Intent, text string) error {
	lower := strings.ToLower(strings.TrimSpace(text))
	confirmed := intent == service.IntentConfirm || lower == "yes" || strings.HasPrefix(lower, "yes ")
	denied := lower == "no" || strings.HasPrefix(lower, "no ") || strings.Contains(lower, "not received") ||
		strings.Contains(lower, "haven't received") || strings.Contains(lower, "didn't receive")

	if !confirmed && !denied {
		if intent == service.IntentQuery {
			return uc.handleQuery(ctx, session, text)
		}
		uc.reply(session, "Before we continue, did you receive your last order? A quick yes or no.")
		return nil
	}

	tx, err := uc.purchaseUC.LatestForActor(ctx, session.Actor())
	if err != nil {
		// Nothing to confirm against; just unblock the conversation.
		session.Reset()
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		uc.reply(session, "Noted. What else can I do for you?")
		return nil
	}

	if confirmed {
		if err := uc.purchaseUC.ConfirmDelivery(ctx, tx.Reference); err != nil {
			return err
		}
		session.Reset()
		if err := uc.save(ctx, session); err != nil {
			return err
		}
		uc.reply(session, "Great, glad it arrived! Come back any time.")
		return nil
	}

	if err := uc.purchaseUC.DisputeDelivery(ctx, tx.Reference); err != nil {
		return err
	}
	session.Reset()
	if err := uc.save(ctx, session); err != nil {
		return err
	}
	uc.reply(session, "Sorry about that. We've paused the vendor's payout and someone will look into it.")
	return nil
}

// beginPurchase runs the orchestrator and translates its typed outcomes into
// buyer-facing replies.
func (uc *ConversationUseCase) beginPurchase(ctx context.Context, session *entity.Session, variant string, negotiatedPrice int64) error {
	if session.LastItemRef == nil {
		uc.reply(session, "Which item would you like? Tell me the name and I'll check for you.")
		return nil
	}

	item, err := uc.findItem(ctx, session.VendorID, session.LastItemRef.SKU)
	if err != nil {
		return err
	}

	tx, err := uc.purchaseUC.RequestPurchase(ctx, session, item, variant, negotiatedPrice)
	if err != nil {
		switch {
		case errors.Is(err, "CAPACITY_EXCEEDED"):
			uc.reply(session, "This vendor has hit their sales limit for today. Please try again tomorrow.")
			return nil
		case errors.Is(err, "CONFLICT") && tx != nil && tx.Status == entity.TransactionPending:
			uc.reply(session, fmt.Sprintf("You already have a payment link waiting for %s: %s", tx.ItemName, tx.PaymentURL))
			return nil
		case errors.Is(err, "CONFLICT") && tx != nil:
			uc.reply(session, fmt.Sprintf("Looks like you already paid for %s just now. You're covered!", tx.ItemName))
			return nil
		case errors.Is(err, "CONFLICT"):
			uc.reply(session, fmt.Sprintf("%s just sold out. Want me to check something similar?", item.Name))
			return nil
		default:
			return err
		}
	}

	uc.reply(session, fmt.Sprintf("Done! Pay ₦%d for %s here: %s", tx.Amount, tx.ItemName, tx.PaymentURL))
	return nil
}

func (uc *ConversationUseCase) findItem(ctx context.Context, vendorID, sku string) (*entity.Item, error) {
	items, err := uc.catalog.GetInventory(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].SKU == sku {
			return &items[i], nil
		}
	}
	return nil, errors.NotFound("Item", nil)
}

func (uc *ConversationUseCase) resetWithApology(ctx context.Context, session *entity.Session) error {
	session.Reset()
	if err := uc.save(ctx, session); err != nil {
		return err
	}
	uc.reply(session, "Let's start over. What are you looking for?")
	return nil
}
