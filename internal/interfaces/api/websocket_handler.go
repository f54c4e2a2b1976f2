package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/auth"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/realtime"
)

type WebSocketHandler struct {
	hub *realtime.Hub
}

func NewWebSocketHandler(hub *realtime.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeChatWs authenticates the handshake and hands the connection to the
// hub. Browsers cannot set headers on websocket dials, so the token is also
// accepted as a query parameter.
func (h *WebSocketHandler) ServeChatWs(c *gin.Context) {
	var userID, err = auth.VerifyRequest(c.Request)
	if err != nil {
		if token := c.Query("token"); token != "" {
			userID, err = auth.VerifyToken(token)
		}
	}
	if err != nil {
		log.Printf("WebSocket authentication failed: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	realtime.ServeWs(h.hub, c.Writer, c.Request, userID)
}
