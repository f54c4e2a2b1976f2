package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Nidios1/zyea-chat-app-sub001/internal/application/services"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/domain"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/events"
	"github.com/Nidios1/zyea-chat-app-sub001/internal/infrastructure/realtime"
)

// ChatHandler exposes the query interface over REST and fires delivery
// events after successful writes.
type ChatHandler struct {
	chat services.ChatService
	hub  *realtime.Hub
}

func NewChatHandler(chat services.ChatService, hub *realtime.Hub) *ChatHandler {
	return &ChatHandler{chat: chat, hub: hub}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAccessDenied), errors.Is(err, services.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		log.Printf("Internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

type createConversationRequest struct {
	PartnerID uuid.UUID `json:"partner_id" binding:"required"`
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	userID, _ := authUser(c)
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "partner_id is required"})
		return
	}
	conversation, err := h.chat.FindOrCreatePrivateConversation(userID, req.PartnerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conversation)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID, _ := authUser(c)
	summaries, err := h.chat.ListConversations(userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, _ := authUser(c)
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	messages, err := h.chat.ListMessages(userID, conversationID, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "page": page, "page_size": pageSize})
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	MediaURL    string `json:"media_url"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, _ := authUser(c)
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.MessageType == "" {
		req.MessageType = string(domain.MessageTypeText)
	}

	message, err := h.chat.SendMessage(userID, conversationID, req.Content, domain.MessageType(req.MessageType), req.MediaURL)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := events.MessagePayload{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		SenderName:     message.Sender.DisplayName,
		SenderAvatar:   message.Sender.AvatarURL,
		Content:        message.Content,
		MessageType:    string(message.MessageType),
		MediaURL:       message.MediaURL.String,
		CreatedAt:      message.CreatedAt,
	}
	if ev, err := events.New(events.TypeMessageCreated, conversationID, payload); err == nil {
		h.hub.BroadcastToConversation(conversationID, ev, userID)
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         message.ID,
		"media_url":  message.MediaURL.String,
		"created_at": message.CreatedAt,
	})
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *ChatHandler) EditMessage(c *gin.Context) {
	userID, _ := authUser(c)
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	message, err := h.chat.EditMessage(userID, messageID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := events.MessageEditedPayload{MessageID: message.ID, Content: message.Content}
	if ev, err := events.New(events.TypeMessageEdited, message.ConversationID, payload); err == nil {
		h.hub.BroadcastToConversation(message.ConversationID, ev, userID)
	}
	c.JSON(http.StatusOK, gin.H{"id": message.ID, "edited_at": message.EditedAt.Time})
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	userID, _ := authUser(c)
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	forEveryone := c.Query("for_everyone") == "true"

	message, err := h.chat.DeleteMessage(userID, messageID, forEveryone)
	if err != nil {
		respondError(c, err)
		return
	}

	// A self-scoped delete changes nobody else's view, so nothing is
	// broadcast for it.
	if forEveryone {
		payload := events.MessageDeletedPayload{MessageID: messageID, ForEveryone: true}
		if ev, err := events.New(events.TypeMessageDeleted, message.ConversationID, payload); err == nil {
			h.hub.BroadcastToConversation(message.ConversationID, ev, userID)
		}
	}
	c.JSON(http.StatusOK, gin.H{"id": messageID})
}

func (h *ChatHandler) MarkAllRead(c *gin.Context) {
	userID, _ := authUser(c)
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	count, err := h.chat.MarkAllRead(userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Empty message id list means "everything in the conversation".
	payload := events.ReadReceiptPayload{ReaderID: userID, MessageIDs: []uuid.UUID{}}
	if ev, err := events.New(events.TypeReadReceipt, conversationID, payload); err == nil {
		h.hub.BroadcastToConversation(conversationID, ev, userID)
	}
	c.JSON(http.StatusOK, gin.H{"marked": count})
}

type updateReactionsRequest struct {
	Reactions []string `json:"reactions"`
}

func (h *ChatHandler) UpdateReactions(c *gin.Context) {
	userID, _ := authUser(c)
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateReactionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	message, err := h.chat.UpdateReactions(userID, messageID, req.Reactions)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := events.ReactionChangedPayload{MessageID: messageID, Reactions: message.ReactionList()}
	if ev, err := events.New(events.TypeReactionChanged, message.ConversationID, payload); err == nil {
		h.hub.BroadcastToConversation(message.ConversationID, ev, userID)
	}
	c.JSON(http.StatusOK, gin.H{"id": messageID, "reactions": message.ReactionList()})
}

type updateSettingRequest struct {
	Hidden   *bool   `json:"hidden"`
	Pinned   *bool   `json:"pinned"`
	Nickname *string `json:"nickname"`
}

func (h *ChatHandler) UpdateSetting(c *gin.Context) {
	userID, _ := authUser(c)
	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	setting, err := h.chat.UpdateSetting(userID, conversationID, services.SettingPatch{
		Hidden:   req.Hidden,
		Pinned:   req.Pinned,
		Nickname: req.Nickname,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, setting)
}
