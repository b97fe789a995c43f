package entity

import "time"

type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionPaid     TransactionStatus = "paid"
	TransactionExpired  TransactionStatus = "expired"
	TransactionRefunded TransactionStatus = "refunded"
)

// Transaction is one payment attempt. Reference is the idempotency key: the
// pending -> paid transition happens exactly once per reference.
type Transaction struct {
	ID        string `json:"id" firestore:"id"`
	Reference string `json:"reference" firestore:"reference"`
	VendorID  string `json:"vendor_id" firestore:"vendorId"`
	BuyerID   string `json:"buyer_id" firestore:"buyerId"`

	ItemSKU  string `json:"item_sku" firestore:"itemSku"`
	ItemName string `json:"item_name" firestore:"itemName"`
	Variant  string `json:"variant,omitempty" firestore:"variant,omitempty"`
	Amount   int64  `json:"amount" firestore:"amount"`

	Status     TransactionStatus `json:"status" firestore:"status"`
	PaymentURL string            `json:"payment_url,omitempty" firestore:"paymentUrl,omitempty"`

	// SettlementObservedAt is written when the gateway's settlement
	// notification lands, before the webhook is acknowledged. A pending
	// transaction with this set has a settlement waiting to be applied.
	SettlementObservedAt *time.Time `json:"settlement_observed_at,omitempty" firestore:"settlementObservedAt,omitempty"`
	SettlementAmount     int64      `json:"settlement_amount,omitempty" firestore:"settlementAmount,omitempty"`

	EscrowReleaseAt *time.Time `json:"escrow_release_at,omitempty" firestore:"escrowReleaseAt,omitempty"`
	PayoutReleased  bool       `json:"payout_released" firestore:"payoutReleased"`

	DeliveryConfirmed bool       `json:"delivery_confirmed" firestore:"deliveryConfirmed"`
	Disputed          bool       `json:"disputed" firestore:"disputed"`
	RefundReason      string     `json:"refund_reason,omitempty" firestore:"refundReason,omitempty"`

	CreatedAt  time.Time  `json:"created_at" firestore:"createdAt"`
	UpdatedAt  time.Time  `json:"updated_at" firestore:"updatedAt"`
	PaidAt     *time.Time `json:"paid_at,omitempty" firestore:"paidAt,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty" firestore:"refundedAt,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty" firestore:"releasedAt,omitempty"`
}

func (t *Transaction) Actor() Actor {
	return Actor{BuyerID: t.BuyerID, VendorID: t.VendorID}
}
