package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken backs the web dashboard sessions. Only the SHA-256 hash of
// the opaque token is stored.
type RefreshToken struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TelegramID string    `gorm:"size:64;not null;index" json:"telegram_id"`
	TokenHash  string    `gorm:"uniqueIndex;not null;size:64" json:"-"`
	ExpiresAt  time.Time `gorm:"not null" json:"expires_at"`
	Revoked    bool      `gorm:"default:false" json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`
}
