// Package events defines the wire contract of the delivery event channel.
// Events are fire-and-forget notifications: there is no durable log and no
// replay. A client that missed events resynchronizes through the query
// interface.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeMessageCreated  Type = "message_created"
	TypeMessageEdited   Type = "message_edited"
	TypeMessageDeleted  Type = "message_deleted"
	TypeReactionChanged Type = "reaction_changed"
	TypeTypingStarted   Type = "typing_started"
	TypeTypingStopped   Type = "typing_stopped"
	TypeReadReceipt     Type = "read_receipt_updated"
	TypePresenceChanged Type = "presence_changed"
	TypeViewing         Type = "viewing_conversation"
	TypeLeft            Type = "left_conversation"
)

// Event is the envelope written to the socket. Payload is one of the typed
// structs below, chosen by Type.
type Event struct {
	Type           Type            `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// MessagePayload is the broadcast form of a persisted message.
type MessagePayload struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderAvatar   string    `json:"sender_avatar,omitempty"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	MediaURL       string    `json:"media_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessageEditedPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type MessageDeletedPayload struct {
	MessageID   uuid.UUID `json:"message_id"`
	ForEveryone bool      `json:"for_everyone"`
}

type ReactionChangedPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Reactions []string  `json:"reactions"`
}

type TypingPayload struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
}

// ReadReceiptPayload lists the messages the reader acknowledged. An empty
// list means every message in the conversation.
type ReadReceiptPayload struct {
	ReaderID   uuid.UUID   `json:"reader_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
}

type PresencePayload struct {
	UserID       uuid.UUID  `json:"user_id"`
	Status       string     `json:"status"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

type ViewingPayload struct {
	UserID uuid.UUID `json:"user_id"`
}

// New builds an envelope with the payload marshaled in place.
func New(t Type, conversationID uuid.UUID, payload any) (Event, error) {
	ev := Event{Type: t, ConversationID: conversationID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Decode unmarshals the envelope payload into dst.
func (e Event) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
