package services

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is always derived, never stored: receipts and presence are
// the single source of truth.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// MessageView is a message as returned by ListMessages: deletion-filtered for
// the viewer, with computed status and decoded reactions.
type MessageView struct {
	ID             uuid.UUID     `json:"id"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	SenderID       uuid.UUID     `json:"sender_id"`
	SenderName     string        `json:"sender_name"`
	SenderAvatar   string        `json:"sender_avatar,omitempty"`
	Content        string        `json:"content"`
	MessageType    string        `json:"message_type"`
	MediaURL       string        `json:"media_url,omitempty"`
	Reactions      []string      `json:"reactions"`
	Edited         bool          `json:"edited"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ConversationSummary backs the conversation list: preview, unread badge and
// the viewer's own display settings.
type ConversationSummary struct {
	ID             uuid.UUID  `json:"id"`
	Type           string     `json:"type"`
	Name           string     `json:"name,omitempty"`
	Nickname       string     `json:"nickname,omitempty"`
	Pinned         bool       `json:"pinned"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	LastMessage    string     `json:"last_message,omitempty"`
	UnreadCount    int64      `json:"unread_count"`
	Participants   []UserView `json:"participants"`
}

type UserView struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}
