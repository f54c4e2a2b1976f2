package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/auth"
)

// authUser reads the authenticated caller. Routes behind auth.Middleware
// always have one.
func authUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return userID, ok
}

// NewRouter wires the REST surface and the websocket endpoint.
func NewRouter(chat *ChatHandler, ws *WebSocketHandler) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	// The websocket handshake authenticates inside the handler so the
	// upgrade can fail cleanly before hijacking the connection.
	r.GET("/ws", ws.ServeChatWs)

	authed := r.Group("/", auth.Middleware())
	{
		authed.POST("/conversations", chat.CreateConversation)
		authed.GET("/conversations", chat.ListConversations)
		authed.GET("/conversations/:id/messages", chat.ListMessages)
		authed.POST("/conversations/:id/messages", chat.SendMessage)
		authed.POST("/conversations/:id/read", chat.MarkAllRead)
		authed.PATCH("/conversations/:id/settings", chat.UpdateSetting)
		authed.PATCH("/messages/:id", chat.EditMessage)
		authed.DELETE("/messages/:id", chat.DeleteMessage)
		authed.PUT("/messages/:id/reactions", chat.UpdateReactions)
	}

	return r
}
