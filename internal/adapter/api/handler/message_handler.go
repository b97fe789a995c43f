package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"vendora/internal/domain/entity"
	"vendora/internal/infrastructure/chatwire"
	"vendora/internal/usecase"
	"vendora/pkg/logger"
	"vendora/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type MessageHandler struct {
	conversationUC *usecase.ConversationUseCase
	manager        *chatwire.Manager
}

func NewMessageHandler(conversationUC *usecase.ConversationUseCase, manager *chatwire.Manager) *MessageHandler {
	return &MessageHandler{
		conversationUC: conversationUC,
		manager:        manager,
	}
}

type inboundMessageRequest struct {
	BuyerID  string `json:"buyer_id" validate:"required"`
	VendorID string `json:"vendor_id" validate:"required"`
	Text     string `json:"text" validate:"required"`
}

// InboundMessage is the HTTP ingress for buyer messages (transport webhooks
// and test harnesses). The reply travels back over the notifier, so this
// returns as soon as the message is queued.
func (h *MessageHandler) InboundMessage(c echo.Context) error {
	var req inboundMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	actor := entity.Actor{BuyerID: req.BuyerID, VendorID: req.VendorID}
	h.conversationUC.EnqueueInbound(actor, req.Text)

	return response.Success(c, map[string]interface{}{
		"queued": true,
		"actor":  actor.Key(),
	})
}

type wireMessage struct {
	VendorID string `json:"vendor_id"`
	Text     string `json:"text"`
}

// WebSocket upgrades one participant connection. Inbound frames from buyers
// feed the actor queue; outbound replies ride the manager's send channel.
func (h *MessageHandler) WebSocket(c echo.Context) error {
	participantID := c.QueryParam("participant_id")
	if participantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "participant_id is required")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &chatwire.Client{
		ParticipantID: participantID,
		Conn:          conn,
		Send:          make(chan []byte, 32),
	}
	h.manager.Register <- client
	go h.manager.WritePump(client)

	go func() {
		defer func() {
			h.manager.Unregister <- client
		}()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				logger.Debug("Read loop ended for %s: %v", participantID, err)
				return
			}

			var msg wireMessage
			if err := json.Unmarshal(payload, &msg); err != nil || msg.VendorID == "" || msg.Text == "" {
				logger.Debug("Dropping malformed frame from %s", participantID)
				continue
			}

			actor := entity.Actor{BuyerID: participantID, VendorID: msg.VendorID}
			h.conversationUC.EnqueueInbound(actor, msg.Text)
		}
	}()

	return nil
}
