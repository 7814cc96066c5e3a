package websocket

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/internal/domain"
)

// Hub fans withdrawal status updates out to the owning user's live
// connections. Delivery is best effort; a slow or gone consumer never blocks
// the withdrawal path.
type Hub struct {
	Clients    map[string]map[*websocket.Conn]bool
	Broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	Logger     zerolog.Logger
}

type Client struct {
	UserID string
	Conn   *websocket.Conn
}

type Message struct {
	Type       string             `json:"type"`
	Withdrawal *domain.Withdrawal `json:"withdrawal,omitempty"`
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		Clients:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:  make(chan Message, 100),
		Register:   make(chan *Client, 100),
		Unregister: make(chan *Client, 100),
		Logger:     logger.With().Str("component", "ws_hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			if h.Clients[client.UserID] == nil {
				h.Clients[client.UserID] = make(map[*websocket.Conn]bool)
			}
			h.Clients[client.UserID][client.Conn] = true
			h.Logger.Info().
				Str("user_id", client.UserID).
				Int("connection_count", len(h.Clients[client.UserID])).
				Msg("WebSocket client registered")

		case client := <-h.Unregister:
			if clients, ok := h.Clients[client.UserID]; ok {
				delete(clients, client.Conn)
				if len(clients) == 0 {
					delete(h.Clients, client.UserID)
				}
				client.Conn.Close()
			}

		case message := <-h.Broadcast:
			if message.Withdrawal == nil {
				continue
			}
			userID := message.Withdrawal.UserID
			clients, ok := h.Clients[userID]
			if !ok {
				continue
			}
			for conn := range clients {
				if err := conn.WriteJSON(message); err != nil {
					h.Logger.Warn().
						Err(err).
						Str("user_id", userID).
						Msg("Failed to push withdrawal update, dropping connection")
					conn.Close()
					delete(clients, conn)
				}
			}
		}
	}
}

// BroadcastWithdrawal queues a status update. Drops the message when the
// hub is backed up.
func (h *Hub) BroadcastWithdrawal(withdrawal *domain.Withdrawal) {
	select {
	case h.Broadcast <- Message{Type: "withdrawal", Withdrawal: withdrawal}:
	default:
		h.Logger.Warn().
			Str("withdrawal_id", withdrawal.ID).
			Msg("Broadcast channel full, dropping withdrawal update")
	}
}
