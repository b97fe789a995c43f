package chatwire

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vendora/pkg/logger"
)

// Client is one connected conversation participant (a buyer or a vendor).
type Client struct {
	ParticipantID string
	Conn          *websocket.Conn
	Send          chan []byte
}

// Manager tracks live websocket connections by participant. It doubles as
// the outbound Notifier: delivery is fire-and-forget, an offline participant
// just misses the push.
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if old, ok := m.clients[client.ParticipantID]; ok {
					close(old.Send)
				}
				m.clients[client.ParticipantID] = client
				m.mutex.Unlock()
				logger.Debug("Chat client registered: %s", client.ParticipantID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				if current, ok := m.clients[client.ParticipantID]; ok && current == client {
					delete(m.clients, client.ParticipantID)
					close(client.Send)
				}
				m.mutex.Unlock()
				logger.Debug("Chat client unregistered: %s", client.ParticipantID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

type outboundMessage struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Send implements the notifier contract. Errors are logged, never returned:
// a dropped notification must not corrupt conversation state.
func (m *Manager) Send(recipientID, text string) {
	payload, err := json.Marshal(outboundMessage{
		Type:      "message",
		Text:      text,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Error("Failed to marshal outbound message for %s: %v", recipientID, err)
		return
	}

	m.mutex.RLock()
	client, ok := m.clients[recipientID]
	m.mutex.RUnlock()

	if !ok {
		logger.Debug("No live connection for %s, dropping notification", recipientID)
		return
	}

	select {
	case client.Send <- payload:
	default:
		logger.Warn("Send buffer full for %s, dropping notification", recipientID)
	}
}

// WritePump drains a client's send channel onto its connection.
func (m *Manager) WritePump(client *Client) {
	defer client.Conn.Close()

	for payload := range client.Send {
		if err := client.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Debug("Write failed for %s: %v", client.ParticipantID, err)
			return
		}
	}
}
