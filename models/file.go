package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type File struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OriginalName string    `gorm:"not null" json:"originalName"`
	MimeType     string    `gorm:"not null" json:"mimeType"`

	// StoragePath is the on-disk artifact; ThumbnailPath may point at the
	// shared default thumbnail.
	StoragePath   string `gorm:"not null" json:"-"`
	ThumbnailPath string `json:"-"`

	Size int64  `gorm:"not null" json:"size"`
	Hash string `gorm:"not null" json:"hash"`

	Likes []Like `gorm:"foreignKey:FileID" json:"-"`

	CreatedAt time.Time `json:"uploadDate"`
}

func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
