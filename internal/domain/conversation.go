package domain

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
)

func (ct ConversationType) IsValid() bool {
	switch ct {
	case ConversationTypePrivate, ConversationTypeGroup:
		return true
	}
	return false
}

// Conversation is never hard-deleted on behalf of a user; hiding is tracked
// per-user in ConversationSetting.
type Conversation struct {
	ID             uuid.UUID        `gorm:"primaryKey;type:char(36)" json:"id"`
	CreatorID      uuid.UUID        `gorm:"column:creator_id;not null;type:char(36)" json:"creator_id"`
	Type           ConversationType `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Name           sql.NullString   `gorm:"column:name" json:"name"`
	LastMessageID  sql.NullString   `gorm:"column:last_message_id" json:"last_message_id"`
	LastActivityAt time.Time        `gorm:"column:last_activity_at;index" json:"last_activity_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`

	Creator      User                      `gorm:"foreignKey:CreatorID;references:ID" json:"-"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants"`
	Messages     []Message                 `gorm:"foreignKey:ConversationID" json:"-"`
}

func (c *Conversation) BeforeSave(tx *gorm.DB) (err error) {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid conversation type: %s", c.Type)
	}
	return nil
}
