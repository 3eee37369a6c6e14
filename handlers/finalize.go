package handlers

import (
	"context"
	"os"

	"gorm.io/gorm"

	"github.com/swapmybytes/backend/httperr"
	"github.com/swapmybytes/backend/models"
	"github.com/swapmybytes/backend/storage"
)

// uploadMeta mirrors the multipart metadata a completed upload must carry.
// The check guards against malformed multipart parsing; the per-field message
// is user-visible and stable.
type uploadMeta struct {
	Fieldname    string
	OriginalName string
	Encoding     string
	MimeType     string
	Destination  string
	Filename     string
	Path         string
	Size         int64
}

func (m uploadMeta) validate() error {
	fields := []struct {
		name string
		ok   bool
	}{
		{"fieldname", m.Fieldname != ""},
		{"originalname", m.OriginalName != ""},
		{"encoding", m.Encoding != ""},
		{"mimetype", m.MimeType != ""},
		{"destination", m.Destination != ""},
		{"filename", m.Filename != ""},
		{"path", m.Path != ""},
		{"size", m.Size > 0},
	}
	for _, f := range fields {
		if !f.ok {
			return httperr.Forbidden("Missing required field: %s", f.name)
		}
	}
	return nil
}

// finalize runs the tail of every upload, single-shot or merged: hash the
// artifact (fatal on failure), render a thumbnail (best-effort), persist the
// File row, put it in the uploader's owned set and mark the uploader as
// having contributed. The S3 mirror, when configured, is best-effort too.
func (h *FileHandler) finalize(ctx context.Context, user *models.User, originalName, path, mimeType string) (*models.File, error) {
	hash, err := storage.HashFile(path)
	if err != nil {
		return nil, err
	}

	thumbPath := h.thumbs.Generate(path, mimeType)

	info, err := os.Stat(path)
	if err != nil {
		return nil, httperr.IO(err, "could not stat uploaded file")
	}

	file := models.File{
		OriginalName:  originalName,
		MimeType:      mimeType,
		StoragePath:   path,
		ThumbnailPath: thumbPath,
		Size:          info.Size(),
		Hash:          hash,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		if err := tx.Exec(
			"INSERT INTO user_files (user_id, file_id) VALUES (?, ?)",
			user.ID, file.ID,
		).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Update("has_contributed", true).Error
	})
	if err != nil {
		return nil, httperr.Database(err, "Failed to save file metadata")
	}

	if err := h.mirror.Put(ctx, path); err != nil {
		h.log.Warn("artifact mirror failed", "path", path, "error", err)
	}

	h.log.Info("upload finalized", "file", file.ID, "name", originalName, "user", user.Username, "hash", hash)
	return &file, nil
}
