// Package tokens implements the download-token protocol: short-lived,
// single-use grants binding an authorization decision to one file.
package tokens

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/swapmybytes/backend/httperr"
	"github.com/swapmybytes/backend/models"
)

type Authority struct {
	db            *gorm.DB
	ttl           time.Duration
	trendingLimit int
	log           *slog.Logger
}

func NewAuthority(db *gorm.DB, ttl time.Duration, trendingLimit int, log *slog.Logger) *Authority {
	return &Authority{db: db, ttl: ttl, trendingLimit: trendingLimit, log: log}
}

// TTL is the validity window of newly issued tokens.
func (a *Authority) TTL() time.Duration { return a.ttl }

// Issue mints an unused token for fileID, valid for the authority's TTL.
// The token string is an unguessable random UUID, never reused.
func (a *Authority) Issue(fileID uuid.UUID) (string, error) {
	token := models.DownloadToken{
		Token:     uuid.NewString(),
		FileID:    fileID,
		ExpiresAt: time.Now().Add(a.ttl),
	}
	if err := a.db.Create(&token).Error; err != nil {
		return "", httperr.Database(err, "could not create download token")
	}
	a.log.Info("download token issued", "file", fileID, "expiresAt", token.ExpiresAt)
	return token.Token, nil
}

// Redeem walks the token state machine for user and returns the file to
// stream. Used and expired are terminal: redemption is refused. Authorization
// is re-evaluated here, not just at issuance, because trending membership can
// change in between. The unused->used transition is a single conditional
// update, so two concurrent redemptions of one token cannot both pass.
func (a *Authority) Redeem(tokenStr string, user *models.User) (*models.File, error) {
	var token models.DownloadToken
	err := a.db.Where("token = ?", tokenStr).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, httperr.NotFound("Download token not found")
	}
	if err != nil {
		return nil, httperr.Database(err, "could not look up download token")
	}

	if token.Used {
		return nil, httperr.Forbidden("Download token already used. Please create a new one by uploading another file.")
	}
	if time.Now().After(token.ExpiresAt) {
		return nil, httperr.Forbidden("Download token expired. Please create a new one by uploading another file.")
	}

	var file models.File
	err = a.db.Where("id = ?", token.FileID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// The token outlived its referent; that is a data-integrity fault,
		// not a user-facing not-found.
		return nil, httperr.Database(err, "download token references a missing file")
	}
	if err != nil {
		return nil, httperr.Database(err, "could not look up file")
	}

	ok, err := a.CanAccess(user, token.FileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, httperr.Forbidden("You do not have permission to download this file.")
	}

	res := a.db.Model(&models.DownloadToken{}).
		Where("token = ? AND used = ?", tokenStr, false).
		Update("used", true)
	if res.Error != nil {
		return nil, httperr.Database(res.Error, "could not consume download token")
	}
	if res.RowsAffected == 0 {
		// Lost the race against a concurrent redemption.
		return nil, httperr.Forbidden("Download token already used. Please create a new one by uploading another file.")
	}

	// Closing the swap cycle: another upload is needed before the next
	// random file.
	if err := a.db.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("has_contributed", false).Error; err != nil {
		return nil, httperr.Database(err, "could not update user")
	}

	a.log.Info("download token redeemed", "token", tokenStr, "file", file.ID, "user", user.Username)
	return &file, nil
}

// DeleteSpent removes every used or expired token. Redemption already rejects
// both, so this is storage hygiene, not a safety mechanism.
func (a *Authority) DeleteSpent() (int64, error) {
	res := a.db.Where("used = ? OR expires_at < ?", true, time.Now()).
		Delete(&models.DownloadToken{})
	if res.Error != nil {
		return 0, httperr.Database(res.Error, "could not clean up download tokens")
	}
	return res.RowsAffected, nil
}
