package domain

import (
	"time"

	"github.com/google/uuid"
)

// User rows are owned by the account service; this service only reads them
// for access checks and sender display metadata.
type User struct {
	ID             uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	Email          string    `gorm:"type:varchar(320);unique;not null" json:"-"`
	Username       string    `gorm:"type:varchar(255);unique;not null" json:"username"`
	HashedPassword string    `gorm:"type:varchar(60);not null" json:"-"`
	DisplayName    string    `gorm:"type:varchar(255);not null" json:"display_name"`
	AvatarURL      string    `gorm:"type:varchar(512)" json:"avatar_url"`
	IsVerified     bool      `gorm:"default:false" json:"is_verified"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"-"`
}
