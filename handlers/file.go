package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/swapmybytes/backend/auth/middleware"
	"github.com/swapmybytes/backend/config"
	"github.com/swapmybytes/backend/httperr"
	"github.com/swapmybytes/backend/models"
	"github.com/swapmybytes/backend/storage"
	"github.com/swapmybytes/backend/thumbnail"
	"github.com/swapmybytes/backend/tokens"
)

type FileHandler struct {
	db     *gorm.DB
	cfg    config.Config
	chunks *storage.ChunkStore
	thumbs *thumbnail.Generator
	tokens *tokens.Authority
	mirror *storage.Mirror
	log    *slog.Logger
}

func NewFileHandler(
	db *gorm.DB,
	cfg config.Config,
	chunks *storage.ChunkStore,
	thumbs *thumbnail.Generator,
	authority *tokens.Authority,
	mirror *storage.Mirror,
	log *slog.Logger,
) *FileHandler {
	return &FileHandler{
		db:     db,
		cfg:    cfg,
		chunks: chunks,
		thumbs: thumbs,
		tokens: authority,
		mirror: mirror,
		log:    log,
	}
}

// Upload handles a single-request upload.
func (h *FileHandler) Upload(c *gin.Context) {
	user := middleware.CurrentUser(c)

	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, h.log, httperr.Forbidden("No file uploaded"))
		return
	}

	dst := filepath.Join(h.cfg.UploadDir, uuid.NewString()+"_"+filepath.Base(fh.Filename))
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		fail(c, h.log, httperr.IO(err, "Failed to save file"))
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		// Client sent no declared type; sniff the bytes instead.
		if mt, err := mimetype.DetectFile(dst); err == nil {
			mimeType = mt.String()
		}
	}

	meta := uploadMeta{
		Fieldname:    "file",
		OriginalName: fh.Filename,
		Encoding:     "7bit",
		MimeType:     mimeType,
		Destination:  h.cfg.UploadDir,
		Filename:     filepath.Base(dst),
		Path:         dst,
		Size:         fh.Size,
	}
	if err := meta.validate(); err != nil {
		os.Remove(dst)
		fail(c, h.log, err)
		return
	}

	file, err := h.finalize(c.Request.Context(), user, meta.OriginalName, dst, meta.MimeType)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"fileId":  file.ID,
	})
}

// CreateUploadSession mints the server-issued session ID that namespaces one
// chunked upload.
func (h *FileHandler) CreateUploadSession(c *gin.Context) {
	id, err := h.chunks.NewSession()
	if err != nil {
		fail(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploadSession": id})
}

// UploadChunk stores one chunk of a session.
func (h *FileHandler) UploadChunk(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, h.log, httperr.Forbidden("Invalid file uploaded or file path is missing."))
		return
	}

	session := c.PostForm("uploadSession")
	if session == "" {
		session = c.GetHeader("X-Upload-Session")
	}
	indexStr := c.PostForm("chunkIndex")
	totalStr := c.PostForm("totalChunks")
	originalName := c.PostForm("originalName")

	if session == "" || indexStr == "" || totalStr == "" || originalName == "" {
		fail(c, h.log, httperr.Forbidden("Missing metadata fields: uploadSession, chunkIndex, totalChunks, originalName."))
		return
	}

	index, err := strconv.Atoi(indexStr)
	if err != nil {
		fail(c, h.log, httperr.Validation("Missing or malformed metadata field: chunkIndex"))
		return
	}
	total, err := strconv.Atoi(totalStr)
	if err != nil {
		fail(c, h.log, httperr.Validation("Missing or malformed metadata field: totalChunks"))
		return
	}

	src, err := fh.Open()
	if err != nil {
		fail(c, h.log, httperr.IO(err, "could not read uploaded chunk"))
		return
	}
	defer src.Close()

	if err := h.chunks.StoreChunk(session, filepath.Base(originalName), index, total, src); err != nil {
		fail(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Chunk uploaded successfully."})
}

// MergeChunks assembles a completed chunk set and runs the upload pipeline on
// the merged artifact. The declared chunk content type is not trusted; the
// merged bytes are sniffed.
func (h *FileHandler) MergeChunks(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var body struct {
		UploadSession string `json:"uploadSession"`
		OriginalName  string `json:"originalName"`
		TotalChunks   int    `json:"totalChunks"`
	}
	if err := c.ShouldBindJSON(&body); err != nil ||
		body.UploadSession == "" || body.OriginalName == "" || body.TotalChunks == 0 {
		fail(c, h.log, httperr.Forbidden("Missing metadata fields: uploadSession, originalName, totalChunks."))
		return
	}

	finalPath, err := h.chunks.Merge(body.UploadSession, filepath.Base(body.OriginalName), body.TotalChunks, h.cfg.UploadDir)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	mimeType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(finalPath); err == nil {
		mimeType = mt.String()
	}

	if _, err := h.finalize(c.Request.Context(), user, body.OriginalName, finalPath, mimeType); err != nil {
		fail(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File merged successfully."})
}

// GenerateDownload authorizes the caller for a file and mints a single-use
// download token. The file also joins the caller's owned set, so a later
// token can be issued without relying on trending.
func (h *FileHandler) GenerateDownload(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var body struct {
		FileID string `json:"fileId"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.FileID == "" {
		fail(c, h.log, httperr.Forbidden("No file ID provided"))
		return
	}

	fileID, err := uuid.Parse(body.FileID)
	if err != nil {
		fail(c, h.log, httperr.Validation("Invalid file ID"))
		return
	}

	var file models.File
	err = h.db.Where("id = ?", fileID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.NotFound("File not found"))
		return
	}
	if err != nil {
		fail(c, h.log, httperr.Database(err, "could not look up file"))
		return
	}

	ok, err := h.tokens.CanAccess(user, fileID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if !ok {
		fail(c, h.log, httperr.Forbidden("You do not have permission to download this file."))
		return
	}

	token, err := h.tokens.Issue(fileID)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	if err := h.addToOwnedSet(user.ID, fileID); err != nil {
		fail(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Redeem consumes a download token and streams the file, with the original
// name and media type in response headers.
func (h *FileHandler) Redeem(c *gin.Context) {
	user := middleware.CurrentUser(c)

	file, err := h.tokens.Redeem(c.Param("token"), user)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	c.Header("Mimetype", file.MimeType)
	c.Header("Filename", file.OriginalName)
	c.File(file.StoragePath)
}

// Random hands the caller a random file they do not own yet. Gated on having
// contributed an upload since the last redemption.
func (h *FileHandler) Random(c *gin.Context) {
	user := middleware.CurrentUser(c)

	if !user.HasContributed {
		fail(c, h.log, httperr.Forbidden("You need to upload a file before you can download a random file."))
		return
	}

	owned := h.db.Table("user_files").Select("file_id").Where("user_id = ?", user.ID)

	var file models.File
	err := h.db.Where("id NOT IN (?)", owned).Order("random()").First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.NotFound("No files found"))
		return
	}
	if err != nil {
		fail(c, h.log, httperr.Database(err, "could not pick a random file"))
		return
	}

	if err := h.addToOwnedSet(user.ID, file.ID); err != nil {
		fail(c, h.log, err)
		return
	}

	h.log.Info("random file assigned", "file", file.ID, "user", user.Username)
	c.JSON(http.StatusOK, file.ID)
}

// Trending lists the current most-liked files.
func (h *FileHandler) Trending(c *gin.Context) {
	files, err := h.tokens.Trending()
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if len(files) == 0 {
		fail(c, h.log, httperr.NotFound("No trending files found"))
		return
	}

	response := make([]gin.H, 0, len(files))
	for _, f := range files {
		response = append(response, gin.H{
			"id":           f.ID,
			"name":         f.OriginalName,
			"likecount":    len(f.Likes),
			"mimeType":     f.MimeType,
			"thumbnail":    h.thumbnailBase64(f.ThumbnailPath),
			"uploadDate":   f.CreatedAt,
			"downloadLink": "/files/" + f.ID.String(),
		})
	}
	c.JSON(http.StatusOK, response)
}

// UserFiles lists everything in the caller's owned set.
func (h *FileHandler) UserFiles(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var files []models.File
	err := h.db.Preload("Likes").
		Joins("JOIN user_files uf ON uf.file_id = files.id").
		Where("uf.user_id = ?", user.ID).
		Find(&files).Error
	if err != nil {
		fail(c, h.log, httperr.Database(err, "Failed to fetch files"))
		return
	}
	if len(files) == 0 {
		fail(c, h.log, httperr.NotFound("No files found for this user"))
		return
	}

	response := make([]gin.H, 0, len(files))
	for _, f := range files {
		hasUserLike := false
		for _, like := range f.Likes {
			if like.UserID == user.ID {
				hasUserLike = true
				break
			}
		}
		response = append(response, gin.H{
			"id":          f.ID,
			"name":        f.OriginalName,
			"thumbnail":   h.thumbnailBase64(f.ThumbnailPath),
			"mimeType":    f.MimeType,
			"uploadDate":  f.CreatedAt,
			"likecount":   len(f.Likes),
			"hasUserLike": hasUserLike,
		})
	}
	c.JSON(http.StatusOK, response)
}

// ToggleLike flips the caller's like on a file. At most one Like row exists
// per (file, user).
func (h *FileHandler) ToggleLike(c *gin.Context) {
	user := middleware.CurrentUser(c)

	fileID, err := uuid.Parse(c.Param("fileId"))
	if err != nil {
		fail(c, h.log, httperr.Forbidden("Invalid file or user ID"))
		return
	}

	var file models.File
	err = h.db.Where("id = ?", fileID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.NotFound("File not found"))
		return
	}
	if err != nil {
		fail(c, h.log, httperr.Database(err, "could not look up file"))
		return
	}

	var like models.Like
	err = h.db.Where("file_id = ? AND user_id = ?", fileID, user.ID).First(&like).Error
	switch {
	case err == nil:
		if err := h.db.Delete(&like).Error; err != nil {
			fail(c, h.log, httperr.Database(err, "Error unliking file"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Like removed"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		like = models.Like{FileID: fileID, UserID: user.ID}
		if err := h.db.Create(&like).Error; err != nil {
			fail(c, h.log, httperr.Database(err, "Error liking file"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "File liked", "likeId": like.ID})
	default:
		fail(c, h.log, httperr.Database(err, "Error liking file"))
	}
}

// Delete removes a file from the caller's owned set. The row and the on-disk
// artifact stay; other owners may still hold the file, and disk reclamation
// belongs to the expiry sweep.
func (h *FileHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)

	fileID, err := uuid.Parse(c.Param("fileId"))
	if err != nil {
		fail(c, h.log, httperr.Forbidden("Invalid file ID"))
		return
	}

	var file models.File
	err = h.db.Where("id = ?", fileID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.NotFound("File not found"))
		return
	}
	if err != nil {
		fail(c, h.log, httperr.Database(err, "could not look up file"))
		return
	}

	if err := h.db.Exec(
		"DELETE FROM user_files WHERE user_id = ? AND file_id = ?",
		user.ID, fileID,
	).Error; err != nil {
		fail(c, h.log, httperr.Database(err, "Error deleting file"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "File deleted"})
}

// ShareQR renders a QR code pointing at the file's share page.
func (h *FileHandler) ShareQR(c *gin.Context) {
	fileID, err := uuid.Parse(c.Param("fileId"))
	if err != nil {
		fail(c, h.log, httperr.Validation("Invalid file ID"))
		return
	}

	var file models.File
	err = h.db.Where("id = ?", fileID).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.NotFound("File not found"))
		return
	}
	if err != nil {
		fail(c, h.log, httperr.Database(err, "could not look up file"))
		return
	}

	png, err := qrcode.Encode(fmt.Sprintf("%s/files/%s", h.cfg.FrontendOrigin, file.ID), qrcode.Medium, 256)
	if err != nil {
		fail(c, h.log, httperr.IO(err, "could not render QR code"))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// addToOwnedSet links user and file, idempotently.
func (h *FileHandler) addToOwnedSet(userID, fileID uuid.UUID) error {
	var n int64
	if err := h.db.Table("user_files").
		Where("user_id = ? AND file_id = ?", userID, fileID).
		Count(&n).Error; err != nil {
		return httperr.Database(err, "could not check file ownership")
	}
	if n > 0 {
		return nil
	}
	if err := h.db.Exec(
		"INSERT INTO user_files (user_id, file_id) VALUES (?, ?)",
		userID, fileID,
	).Error; err != nil {
		return httperr.Database(err, "could not update file ownership")
	}
	return nil
}

func (h *FileHandler) thumbnailBase64(path string) any {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}
