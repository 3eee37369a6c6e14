package tokens

import (
	"github.com/google/uuid"

	"github.com/swapmybytes/backend/httperr"
	"github.com/swapmybytes/backend/models"
)

// Trending returns the most-liked files, descending, capped at the configured
// limit. Ties fall wherever the database puts them; callers must not read
// meaning into tie order.
func (a *Authority) Trending() ([]models.File, error) {
	var files []models.File
	err := a.db.Model(&models.File{}).
		Preload("Likes").
		Select("files.*, count(likes.id) AS like_count").
		Joins("LEFT JOIN likes ON likes.file_id = files.id").
		Group("files.id").
		Order("like_count DESC").
		Limit(a.trendingLimit).
		Find(&files).Error
	if err != nil {
		return nil, httperr.Database(err, "could not query trending files")
	}
	return files, nil
}

// CanAccess is the single authorization predicate for download tokens: the
// file is in the user's owned set, or it is currently trending. No file is
// universally public.
func (a *Authority) CanAccess(user *models.User, fileID uuid.UUID) (bool, error) {
	var n int64
	err := a.db.Table("user_files").
		Where("user_id = ? AND file_id = ?", user.ID, fileID).
		Count(&n).Error
	if err != nil {
		return false, httperr.Database(err, "could not check file ownership")
	}
	if n > 0 {
		return true, nil
	}

	trending, err := a.Trending()
	if err != nil {
		return false, err
	}
	for _, f := range trending {
		if f.ID == fileID {
			return true, nil
		}
	}
	return false, nil
}
