package service

import "context"

type PaymentLinkRequest struct {
	Reference string
	Amount    int64 // naira
	BuyerID   string
	VendorID  string
	ItemSKU   string
	ItemName  string
}

type PaymentLink struct {
	Reference string
	URL       string
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentGatewayService is the outbound payment collaborator. Verify exists
// for out-of-band reconciliation; settlement normally arrives via webhook.
type PaymentGatewayService interface {
	RequestPaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
	Verify(ctx context.Context, reference string) (PaymentStatus, error)
	Refund(ctx context.Context, reference string, reason string) error
	VerifyWebhookSignature(body []byte, signature string) bool
}
