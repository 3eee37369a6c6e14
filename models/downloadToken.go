package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DownloadToken is a short-lived, single-use grant to fetch one file.
// Lifecycle: issued unused, marked used exactly once on redemption, swept by
// the cleanup job once used or expired.
type DownloadToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Token     string    `gorm:"uniqueIndex;not null"`
	FileID    uuid.UUID `gorm:"type:uuid;not null"`
	Used      bool      `gorm:"default:false"`
	ExpiresAt time.Time `gorm:"not null"`

	CreatedAt time.Time
}

func (t *DownloadToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
