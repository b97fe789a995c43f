package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"vendora/internal/domain/service"
	"vendora/internal/usecase"
	"vendora/pkg/errors"
	"vendora/pkg/logger"
)

type WebhookHandler struct {
	gateway        service.PaymentGatewayService
	conversationUC *usecase.ConversationUseCase
}

func NewWebhookHandler(gateway service.PaymentGatewayService, conversationUC *usecase.ConversationUseCase) *WebhookHandler {
	return &WebhookHandler{
		gateway:        gateway,
		conversationUC: conversationUC,
	}
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"` // kobo
		Status    string `json:"status"`
	} `json:"data"`
}

// PaystackWebhook ingests settlement notifications. Replays, unknown
// references, and foreign events ack 200; a settlement that could not be
// durably recorded returns 500 so the gateway redelivers it.
func (h *WebhookHandler) PaystackWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Unreadable body")
	}

	signature := c.Request().Header.Get("x-paystack-signature")
	if !h.gateway.VerifyWebhookSignature(body, signature) {
		logger.Warn("Rejected webhook with bad signature from %s", c.RealIP())
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid signature")
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.Warn("Unparseable webhook payload: %v", err)
		return c.NoContent(http.StatusOK)
	}

	if event.Event != "charge.success" {
		logger.Debug("Ignoring webhook event %s", event.Event)
		return c.NoContent(http.StatusOK)
	}

	amountNaira := event.Data.Amount / 100
	if err := h.conversationUC.EnqueueSettlement(c.Request().Context(), event.Data.Reference, amountNaira); err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return c.NoContent(http.StatusOK)
		}
		logger.Error("Failed to record settlement %s: %v", event.Data.Reference, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Settlement not recorded")
	}

	return c.NoContent(http.StatusOK)
}
