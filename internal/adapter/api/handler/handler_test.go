package handler

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendora/internal/domain/service"
)

func TestCheckHealth(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler()
	require.NoError(t, h.CheckHealth(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Server is running")
}

func signBody(secret, body string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	e := echo.New()
	body := `{"event":"charge.success","data":{"reference":"VND-X","amount":2500000}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", "deadbeef")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewWebhookHandler(service.NewPaystackPaymentService("sk_test_secret"), nil)

	err := h.PaystackWebhook(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestPaystackWebhookIgnoresNonChargeEvents(t *testing.T) {
	e := echo.New()
	secret := "sk_test_secret"
	body := `{"event":"transfer.success","data":{"reference":"VND-X","amount":2500000}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", signBody(secret, body))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// The conversation usecase is never reached for non-charge events.
	h := NewWebhookHandler(service.NewPaystackPaymentService(secret), nil)

	require.NoError(t, h.PaystackWebhook(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}
