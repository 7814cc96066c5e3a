package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/moritzWa/pickup-sub004/internal/server/middleware"
	"github.com/moritzWa/pickup-sub004/internal/server/websocket"
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams withdrawal status updates to the caller.
type WebSocketHandler struct {
	wsHub *websocket.Hub
}

func NewWebSocketHandler(wsHub *websocket.Hub) *WebSocketHandler {
	return &WebSocketHandler{wsHub: wsHub}
}

func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "No authenticated user",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &websocket.Client{UserID: user.ID, Conn: conn}
	h.wsHub.Register <- client

	// Consume control frames until the peer goes away, then unregister.
	go func() {
		defer func() { h.wsHub.Unregister <- client }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
