package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Like is one user's like on one file. The composite unique index is what
// makes the like/unlike toggle idempotent per (file, user) pair.
type Like struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	FileID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_likes_file_user;not null"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_likes_file_user;not null"`

	CreatedAt time.Time
}

func (l *Like) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
