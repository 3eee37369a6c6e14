// Package oauth wires Google sign-in. Federated accounts are flagged
// IsGoogleUser and refuse password login elsewhere.
package oauth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"gorm.io/gorm"

	"github.com/swapmybytes/backend/auth"
	"github.com/swapmybytes/backend/auth/middleware"
	"github.com/swapmybytes/backend/config"
	"github.com/swapmybytes/backend/models"
)

type Handler struct {
	db      *gorm.DB
	manager *auth.Manager
	cfg     config.Config
	log     *slog.Logger
}

func NewHandler(db *gorm.DB, manager *auth.Manager, cfg config.Config, log *slog.Logger) *Handler {
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   cfg.Production,
	})
	gothic.Store = store

	goth.UseProviders(google.New(
		cfg.GoogleClientID,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
		"email", "profile",
	))

	return &Handler{db: db, manager: manager, cfg: cfg, log: log}
}

// Begin redirects to Google's consent screen.
func (h *Handler) Begin(c *gin.Context) {
	q := c.Request.URL.Query()
	q.Set("provider", "google")
	c.Request.URL.RawQuery = q.Encode()
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// Callback completes the exchange, provisions the account on first login and
// sets the auth cookie pair before sending the browser back to the app.
func (h *Handler) Callback(c *gin.Context) {
	q := c.Request.URL.Query()
	q.Set("provider", "google")
	c.Request.URL.RawQuery = q.Encode()

	gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
	if err != nil {
		h.log.Error("google auth failed", "error", err)
		c.Redirect(http.StatusTemporaryRedirect, h.cfg.FrontendOrigin+"/login?error=oauth")
		return
	}

	user, err := h.findOrCreate(gothUser.Email)
	if err != nil {
		h.log.Error("could not provision google user", "email", gothUser.Email, "error", err)
		c.Redirect(http.StatusTemporaryRedirect, h.cfg.FrontendOrigin+"/login?error=oauth")
		return
	}

	accessToken, refreshToken, err := h.manager.GenerateTokens(user.Username)
	if err != nil {
		h.log.Error("could not sign tokens", "error", err)
		c.Redirect(http.StatusTemporaryRedirect, h.cfg.FrontendOrigin+"/login?error=oauth")
		return
	}

	secure := h.cfg.Production
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, accessToken, int(h.manager.AccessTTL().Seconds()), "/", "", secure, secure)
	c.SetCookie(middleware.RefreshCookie, refreshToken, int(h.manager.RefreshTTL().Seconds()), "/", "", secure, secure)

	h.log.Info("google login", "user", user.Username)
	c.Redirect(http.StatusTemporaryRedirect, h.cfg.FrontendOrigin)
}

func (h *Handler) findOrCreate(email string) (*models.User, error) {
	email = strings.ToLower(email)

	var user models.User
	err := h.db.Where("email = ?", email).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{
		Username:     usernameFrom(email),
		Email:        email,
		IsGoogleUser: true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		// Username taken by a password account; retry with a random suffix.
		user.ID = uuid.Nil
		user.Username = user.Username + uuid.NewString()[:8]
		if err := h.db.Create(&user).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// usernameFrom derives an alphanumeric username from the mail local part.
func usernameFrom(email string) string {
	local, _, _ := strings.Cut(email, "@")
	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "googleuser"
	}
	return b.String()
}
