package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/swapmybytes/backend/httperr"
)

// fail renders any error in the stable {error, message} shape. Server-side
// detail stays in the log; the client sees only the taxonomy kind and text.
func fail(c *gin.Context, log *slog.Logger, err error) {
	e := httperr.From(err)
	if e.Status >= 500 {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	} else {
		log.Warn("request rejected", "method", c.Request.Method, "path", c.FullPath(), "kind", string(e.Kind), "message", e.Message)
	}
	c.JSON(e.Status, gin.H{"error": string(e.Kind), "message": e.Message})
}
