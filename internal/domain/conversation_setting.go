package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ConversationSetting holds one user's display preferences for a
// conversation. It is created lazily on first mutation; a conversation with
// no row is visible and unpinned by default. The other participant's view is
// never affected.
type ConversationSetting struct {
	ConversationID uuid.UUID      `gorm:"column:conversation_id;primaryKey;type:char(36)" json:"conversation_id"`
	UserID         uuid.UUID      `gorm:"column:user_id;primaryKey;type:char(36)" json:"user_id"`
	Hidden         bool           `gorm:"column:hidden;default:false" json:"hidden"`
	Pinned         bool           `gorm:"column:pinned;default:false" json:"pinned"`
	Nickname       sql.NullString `gorm:"column:nickname" json:"nickname"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
