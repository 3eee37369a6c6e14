package jobs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/swapmybytes/backend/config"
	"github.com/swapmybytes/backend/initializers"
	"github.com/swapmybytes/backend/models"
	"github.com/swapmybytes/backend/storage"
	"github.com/swapmybytes/backend/tokens"
)

func newTestCleaner(t *testing.T, cfg config.Config) (*Cleaner, *gorm.DB, *storage.ChunkStore) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, initializers.Migrate(db))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	chunks, err := storage.NewChunkStore(cfg.TempDir, log)
	require.NoError(t, err)
	authority := tokens.NewAuthority(db, 30*time.Second, 10, log)

	defaultThumb := filepath.Join(cfg.UploadDir, "default-thumbnail.png")
	cl := NewCleaner(db, authority, chunks, storage.NewMirror(nil, "", log), defaultThumb, cfg, log)
	return cl, db, chunks
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Config{
		UploadDir:       filepath.Join(root, "uploads"),
		TempDir:         filepath.Join(root, "uploads", "temp"),
		CleanupInterval: time.Hour,
		FileTTL:         7 * 24 * time.Hour,
		ChunkSessionTTL: 24 * time.Hour,
	}
	require.NoError(t, os.MkdirAll(cfg.UploadDir, 0o755))
	return cfg
}

func seedArtifact(t *testing.T, db *gorm.DB, cfg config.Config, name string, age time.Duration) *models.File {
	t.Helper()
	path := filepath.Join(cfg.UploadDir, name)
	require.NoError(t, os.WriteFile(path, []byte("artifact "+name), 0o644))

	file := models.File{
		OriginalName: name,
		MimeType:     "application/octet-stream",
		StoragePath:  path,
		Size:         1,
		Hash:         "h",
	}
	require.NoError(t, db.Create(&file).Error)
	require.NoError(t, db.Model(&file).
		Update("created_at", time.Now().Add(-age)).Error)
	return &file
}

func TestRunOnce_SweepsSpentTokens(t *testing.T) {
	req := require.New(t)
	cfg := testConfig(t)
	cl, db, _ := newTestCleaner(t, cfg)

	file := seedArtifact(t, db, cfg, "f.bin", time.Minute)
	spent := models.DownloadToken{Token: uuid.NewString(), FileID: file.ID, Used: true, ExpiresAt: time.Now().Add(time.Hour)}
	live := models.DownloadToken{Token: uuid.NewString(), FileID: file.ID, ExpiresAt: time.Now().Add(time.Hour)}
	req.NoError(db.Create(&spent).Error)
	req.NoError(db.Create(&live).Error)

	cl.RunOnce(context.Background())

	var remaining []models.DownloadToken
	req.NoError(db.Find(&remaining).Error)
	req.Len(remaining, 1)
	req.Equal(live.Token, remaining[0].Token)
}

func TestRunOnce_SweepsExpiredFiles(t *testing.T) {
	req := require.New(t)
	cfg := testConfig(t)
	cl, db, _ := newTestCleaner(t, cfg)

	user := models.User{Username: "alice", Email: "alice@example.com"}
	req.NoError(db.Create(&user).Error)

	old := seedArtifact(t, db, cfg, "old.bin", cfg.FileTTL+time.Hour)
	fresh := seedArtifact(t, db, cfg, "fresh.bin", time.Minute)

	req.NoError(db.Exec("INSERT INTO user_files (user_id, file_id) VALUES (?, ?)", user.ID, old.ID).Error)
	req.NoError(db.Create(&models.Like{FileID: old.ID, UserID: user.ID}).Error)

	cl.RunOnce(context.Background())

	// Row, artifact, ownership link and likes of the expired file are gone.
	var files []models.File
	req.NoError(db.Find(&files).Error)
	req.Len(files, 1)
	req.Equal(fresh.ID, files[0].ID)
	req.NoFileExists(old.StoragePath)
	req.FileExists(fresh.StoragePath)

	var n int64
	req.NoError(db.Table("user_files").Where("file_id = ?", old.ID).Count(&n).Error)
	req.Zero(n)
	req.NoError(db.Model(&models.Like{}).Where("file_id = ?", old.ID).Count(&n).Error)
	req.Zero(n)
}

func TestRunOnce_KeepsSharedDefaultThumbnail(t *testing.T) {
	req := require.New(t)
	cfg := testConfig(t)
	cl, db, _ := newTestCleaner(t, cfg)

	defaultThumb := filepath.Join(cfg.UploadDir, "default-thumbnail.png")
	req.NoError(os.WriteFile(defaultThumb, []byte("png"), 0o644))

	withDefault := seedArtifact(t, db, cfg, "a.bin", cfg.FileTTL+time.Hour)
	req.NoError(db.Model(withDefault).Update("thumbnail_path", defaultThumb).Error)

	ownThumb := filepath.Join(cfg.UploadDir, "b-thumbnail.png")
	req.NoError(os.WriteFile(ownThumb, []byte("png"), 0o644))
	withOwn := seedArtifact(t, db, cfg, "b.bin", cfg.FileTTL+time.Hour)
	req.NoError(db.Model(withOwn).Update("thumbnail_path", ownThumb).Error)

	cl.RunOnce(context.Background())

	// Per-file thumbnails go with their file; the shared default survives.
	req.FileExists(defaultThumb)
	req.NoFileExists(ownThumb)
}

func TestRunOnce_SweepsStaleChunkSessions(t *testing.T) {
	req := require.New(t)
	cfg := testConfig(t)
	cl, _, chunks := newTestCleaner(t, cfg)

	stale, err := chunks.NewSession()
	req.NoError(err)
	staleDir := filepath.Join(cfg.TempDir, stale)
	past := time.Now().Add(-2 * cfg.ChunkSessionTTL)
	req.NoError(os.Chtimes(staleDir, past, past))

	live, err := chunks.NewSession()
	req.NoError(err)

	cl.RunOnce(context.Background())

	req.NoDirExists(staleDir)
	req.DirExists(filepath.Join(cfg.TempDir, live))
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	req := require.New(t)
	cfg := testConfig(t)
	cfg.CleanupInterval = 10 * time.Millisecond
	cl, db, _ := newTestCleaner(t, cfg)

	file := seedArtifact(t, db, cfg, "f.bin", time.Minute)
	spent := models.DownloadToken{Token: uuid.NewString(), FileID: file.ID, Used: true, ExpiresAt: time.Now().Add(time.Hour)}
	req.NoError(db.Create(&spent).Error)

	ctx, cancel := context.WithCancel(context.Background())
	cl.Start(ctx)

	// The initial sweep runs without waiting for the first tick.
	req.Eventually(func() bool {
		var n int64
		if err := db.Model(&models.DownloadToken{}).Count(&n).Error; err != nil {
			return false
		}
		return n == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
}
