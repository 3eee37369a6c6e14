package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/swapmybytes/backend/auth/oauth"
	"github.com/swapmybytes/backend/handlers"
)

func RegisterUserRoutes(r *gin.Engine, h *handlers.UserHandler, authRequired gin.HandlerFunc) {
	user := r.Group("/user")
	user.POST("/register", h.Register)
	user.POST("/login", h.Login)
	user.POST("/logout", authRequired, h.Logout)
}

func RegisterOAuthRoutes(r *gin.Engine, h *oauth.Handler) {
	authGroup := r.Group("/auth")
	authGroup.GET("/google", h.Begin)
	authGroup.GET("/google/callback", h.Callback)
}
