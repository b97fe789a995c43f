package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vendora/pkg/logger"
)

// PaystackPaymentService implements the gateway contract against the Paystack
// HTTP API. Amounts are converted to kobo on the wire.
type PaystackPaymentService struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func NewPaystackPaymentService(secretKey string) *PaystackPaymentService {
	return &PaystackPaymentService{
		secretKey:  secretKey,
		baseURL:    "https://api.paystack.co",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type paystackInitRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Reference string            `json:"reference"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type paystackInitResponse struct {
	Status bool   `json:"status"`
	Msg    string `json:"message"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type paystackVerifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status string `json:"status"` // success, failed, abandoned
	} `json:"data"`
}

func (ps *PaystackPaymentService) RequestPaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	logger.Info("Requesting payment link: ref=%s amount=%d vendor=%s", req.Reference, req.Amount, req.VendorID)

	initReq := paystackInitRequest{
		Email:     fmt.Sprintf("%s@buyers.vendora.app", req.BuyerID),
		Amount:    req.Amount * 100, // kobo
		Reference: req.Reference,
		Currency:  "NGN",
		Metadata: map[string]string{
			"buyer_id":  req.BuyerID,
			"vendor_id": req.VendorID,
			"item_sku":  req.ItemSKU,
			"item_name": req.ItemName,
		},
	}

	var initResp paystackInitResponse
	if err := ps.post(ctx, "/transaction/initialize", initReq, &initResp); err != nil {
		return nil, err
	}
	if !initResp.Status {
		return nil, fmt.Errorf("paystack initialize rejected: %s", initResp.Msg)
	}

	return &PaymentLink{
		Reference: initResp.Data.Reference,
		URL:       initResp.Data.AuthorizationURL,
	}, nil
}

func (ps *PaystackPaymentService) Verify(ctx context.Context, reference string) (PaymentStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.baseURL+"/transaction/verify/"+reference, nil)
	if err != nil {
		return PaymentStatusPending, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+ps.secretKey)

	resp, err := ps.httpClient.Do(httpReq)
	if err != nil {
		return PaymentStatusPending, fmt.Errorf("paystack verify: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PaymentStatusPending, err
	}

	var verifyResp paystackVerifyResponse
	if err := json.Unmarshal(body, &verifyResp); err != nil {
		return PaymentStatusPending, fmt.Errorf("paystack verify decode: %w", err)
	}

	switch verifyResp.Data.Status {
	case "success":
		return PaymentStatusSuccess, nil
	case "failed", "abandoned", "reversed":
		return PaymentStatusFailed, nil
	default:
		return PaymentStatusPending, nil
	}
}

func (ps *PaystackPaymentService) Refund(ctx context.Context, reference string, reason string) error {
	logger.Info("Refunding payment: ref=%s reason=%s", reference, reason)

	refundReq := map[string]string{
		"transaction":   reference,
		"merchant_note": reason,
	}

	var refundResp struct {
		Status bool   `json:"status"`
		Msg    string `json:"message"`
	}
	if err := ps.post(ctx, "/refund", refundReq, &refundResp); err != nil {
		return err
	}
	if !refundResp.Status {
		return fmt.Errorf("paystack refund rejected: %s", refundResp.Msg)
	}
	return nil
}

// VerifyWebhookSignature checks the x-paystack-signature header: HMAC-SHA512
// of the raw body keyed with the secret key.
func (ps *PaystackPaymentService) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(ps.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (ps *PaystackPaymentService) post(ctx context.Context, path string, payload, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ps.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+ps.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := ps.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 500 {
		return fmt.Errorf("paystack %s: status %d", path, resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}
