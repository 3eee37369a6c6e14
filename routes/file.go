package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/swapmybytes/backend/handlers"
)

// RegisterFileRoutes mounts the file API. Every route requires a resolved
// principal; token redemption re-checks authorization internally on top of
// that.
func RegisterFileRoutes(r *gin.Engine, h *handlers.FileHandler, authRequired gin.HandlerFunc) {
	files := r.Group("/files")
	files.Use(authRequired)

	files.POST("/upload", h.Upload)
	files.POST("/upload-session", h.CreateUploadSession)
	files.POST("/upload-chunk", h.UploadChunk)
	files.POST("/merge-chunks", h.MergeChunks)
	files.POST("/generate-download", h.GenerateDownload)

	files.PATCH("/random", h.Random)
	files.GET("/trending", h.Trending)
	files.GET("/user", h.UserFiles)
	files.GET("/qr/:fileId", h.ShareQR)
	files.PATCH("/like/:fileId", h.ToggleLike)
	files.DELETE("/:fileId", h.Delete)

	// Keep this last so static siblings win the match.
	files.GET("/:token", h.Redeem)
}
