// Package jobs holds the recurring maintenance sweeps. None of them are
// safety-critical; a failed cycle is logged and the next one runs anyway.
package jobs

import (
	"context"
	"log/slog"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/swapmybytes/backend/config"
	"github.com/swapmybytes/backend/models"
	"github.com/swapmybytes/backend/storage"
	"github.com/swapmybytes/backend/tokens"
)

type Cleaner struct {
	db           *gorm.DB
	authority    *tokens.Authority
	chunks       *storage.ChunkStore
	mirror       *storage.Mirror
	defaultThumb string
	cfg          config.Config
	log          *slog.Logger
}

func NewCleaner(
	db *gorm.DB,
	authority *tokens.Authority,
	chunks *storage.ChunkStore,
	mirror *storage.Mirror,
	defaultThumb string,
	cfg config.Config,
	log *slog.Logger,
) *Cleaner {
	return &Cleaner{
		db:           db,
		authority:    authority,
		chunks:       chunks,
		mirror:       mirror,
		defaultThumb: defaultThumb,
		cfg:          cfg,
		log:          log,
	}
}

// Start runs one sweep immediately, then repeats on the configured interval
// until ctx is canceled.
func (cl *Cleaner) Start(ctx context.Context) {
	go func() {
		cl.RunOnce(ctx)
		ticker := time.NewTicker(cl.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cl.RunOnce(ctx)
			}
		}
	}()
	cl.log.Info("cleanup scheduler started", "interval", cl.cfg.CleanupInterval)
}

// RunOnce performs a full sweep: spent download tokens, stale chunk sessions
// and expired files.
func (cl *Cleaner) RunOnce(ctx context.Context) {
	if n, err := cl.authority.DeleteSpent(); err != nil {
		cl.log.Error("token cleanup failed", "error", err)
	} else {
		cl.log.Info("cleaned up expired/used tokens", "count", n)
	}

	if n, err := cl.chunks.SweepStale(cl.cfg.ChunkSessionTTL); err != nil {
		cl.log.Error("chunk session cleanup failed", "error", err)
	} else if n > 0 {
		cl.log.Info("removed stale chunk sessions", "count", n)
	}

	cl.sweepExpiredFiles(ctx)
}

// sweepExpiredFiles deletes files past their retention window, including disk
// artifacts, thumbnails, mirrored copies, ownership links and likes.
func (cl *Cleaner) sweepExpiredFiles(ctx context.Context) {
	cutoff := time.Now().Add(-cl.cfg.FileTTL)

	var expired []models.File
	if err := cl.db.Where("created_at < ?", cutoff).Find(&expired).Error; err != nil {
		cl.log.Error("could not list expired files", "error", err)
		return
	}

	for _, file := range expired {
		if err := os.Remove(file.StoragePath); err != nil && !os.IsNotExist(err) {
			cl.log.Warn("could not remove expired artifact", "path", file.StoragePath, "error", err)
		}
		if file.ThumbnailPath != "" && file.ThumbnailPath != cl.defaultThumb {
			os.Remove(file.ThumbnailPath)
		}
		if err := cl.mirror.Delete(ctx, file.StoragePath); err != nil {
			cl.log.Warn("could not remove mirrored artifact", "path", file.StoragePath, "error", err)
		}

		if err := cl.db.Exec("DELETE FROM user_files WHERE file_id = ?", file.ID).Error; err != nil {
			cl.log.Error("could not unlink expired file", "file", file.ID, "error", err)
			continue
		}
		if err := cl.db.Where("file_id = ?", file.ID).Delete(&models.Like{}).Error; err != nil {
			cl.log.Error("could not delete likes of expired file", "file", file.ID, "error", err)
			continue
		}
		if err := cl.db.Delete(&file).Error; err != nil {
			cl.log.Error("could not delete expired file", "file", file.ID, "error", err)
			continue
		}
		cl.log.Info("expired file removed", "file", file.ID, "name", file.OriginalName)
	}
}
