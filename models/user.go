package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `json:"-"`
	IsGoogleUser bool      `gorm:"default:false" json:"isGoogleUser"`

	// HasContributed gates random-file retrieval: set when an upload
	// completes, cleared when a download token is redeemed.
	HasContributed bool `gorm:"default:false" json:"hasContributed"`

	// Files the user owns or has unlocked (own uploads, random assignment,
	// authorized downloads).
	Files []File `gorm:"many2many:user_files" json:"-"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = strings.ToLower(u.Email)
	return nil
}
