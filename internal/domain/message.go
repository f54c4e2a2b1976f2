package domain

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
)

func (mt MessageType) IsValid() bool {
	switch mt {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo:
		return true
	}
	return false
}

// Message identity is assigned by the server and never changes. Content and
// EditedAt mutate only through an edit by the original sender; Reactions may
// be replaced by any participant. DeletedAt is the "delete for everyone"
// scope; per-viewer deletes live in MessageDeletion.
type Message struct {
	ID             uuid.UUID       `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID uuid.UUID       `gorm:"column:conversation_id;not null;type:char(36);index" json:"conversation_id"`
	SenderID       uuid.UUID       `gorm:"column:sender_id;not null;type:char(36)" json:"sender_id"`
	Content        string          `gorm:"column:content" json:"content"`
	MessageType    MessageType     `gorm:"column:message_type;type:varchar(50);not null" json:"message_type"`
	MediaURL       sql.NullString  `gorm:"column:media_url" json:"media_url"`
	Reactions      json.RawMessage `gorm:"column:reactions;type:jsonb" json:"reactions"`
	EditedAt       sql.NullTime    `gorm:"column:edited_at" json:"edited_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"-"`

	Conversation Conversation `gorm:"foreignKey:ConversationID;references:ID" json:"-"`
	Sender       User         `gorm:"foreignKey:SenderID;references:ID" json:"-"`

	MessageReads []MessageRead `gorm:"foreignKey:MessageID" json:"-"`
}

func (m *Message) BeforeSave(tx *gorm.DB) (err error) {
	if !m.MessageType.IsValid() {
		return fmt.Errorf("invalid message type: %s", m.MessageType)
	}
	return nil
}

// ReactionList decodes the stored reaction array. Reactions are a flat list
// of emoji tokens with no per-user attribution; duplicates are permitted.
func (m *Message) ReactionList() []string {
	if len(m.Reactions) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(m.Reactions, &list); err != nil {
		return nil
	}
	return list
}

// IsEdited reports whether the message carries an edit timestamp.
func (m *Message) IsEdited() bool {
	return m.EditedAt.Valid
}

// MessageRead marks a message as viewed by a participant. Absence of a row
// means unread.
type MessageRead struct {
	MessageID uuid.UUID `gorm:"column:message_id;primaryKey;type:char(36)" json:"message_id"`
	ReaderID  uuid.UUID `gorm:"column:reader_id;primaryKey;type:char(36)" json:"reader_id"`
	ReadAt    time.Time `gorm:"column:read_at;not null" json:"read_at"`

	Message Message `gorm:"foreignKey:MessageID;references:ID" json:"-"`
	Reader  User    `gorm:"foreignKey:ReaderID;references:ID" json:"-"`
}

// MessageDeletion scopes a soft delete to a single viewer.
type MessageDeletion struct {
	MessageID uuid.UUID `gorm:"column:message_id;primaryKey;type:char(36)" json:"message_id"`
	UserID    uuid.UUID `gorm:"column:user_id;primaryKey;type:char(36)" json:"user_id"`
	DeletedAt time.Time `gorm:"column:deleted_at;not null" json:"deleted_at"`
}
