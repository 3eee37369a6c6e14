package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/swapmybytes/backend/auth"
	"github.com/swapmybytes/backend/auth/middleware"
	"github.com/swapmybytes/backend/config"
	"github.com/swapmybytes/backend/httperr"
	"github.com/swapmybytes/backend/models"
)

var (
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9]{1,24}$`)
)

const passwordSpecials = `#?!"@$ %^&*-+`

type UserHandler struct {
	db      *gorm.DB
	manager *auth.Manager
	cfg     config.Config
	log     *slog.Logger
}

func NewUserHandler(db *gorm.DB, manager *auth.Manager, cfg config.Config, log *slog.Logger) *UserHandler {
	return &UserHandler{db: db, manager: manager, cfg: cfg, log: log}
}

func (h *UserHandler) Register(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, h.log, httperr.Validation("Invalid request body"))
		return
	}

	if !validPassword(body.Password) {
		fail(c, h.log, httperr.Validation(`Invalid password format. Password must consist of 8 - 64 characters with at least one letter, one special character (#?!"@$ %%^&*-+) and one number!`))
		return
	}
	if !emailRe.MatchString(body.Email) {
		fail(c, h.log, httperr.Validation("Invalid E-Mail format."))
		return
	}
	if !usernameRe.MatchString(body.Username) {
		fail(c, h.log, httperr.Validation("Invalid Username. Only alphanumerical characters and a max length of 24 allowed!"))
		return
	}

	var existing models.User
	err := h.db.Where("email = ?", strings.ToLower(body.Email)).First(&existing).Error
	if err == nil {
		if existing.IsGoogleUser {
			fail(c, h.log, httperr.Forbidden("This email is linked to a Google account. Please sign in with Google."))
			return
		}
		fail(c, h.log, httperr.Validation("Email is already registered."))
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.Database(err, "Error during registration"))
		return
	}

	err = h.db.Where("username = ?", body.Username).First(&existing).Error
	if err == nil {
		fail(c, h.log, httperr.Validation("Username is already taken."))
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.Database(err, "Error during registration"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(c, h.log, httperr.Database(err, "Error during registration"))
		return
	}

	user := models.User{
		Username:     body.Username,
		Email:        body.Email,
		PasswordHash: string(hash),
	}
	if err := h.db.Create(&user).Error; err != nil {
		fail(c, h.log, httperr.Database(err, "Error during registration"))
		return
	}

	if err := h.setAuthCookies(c, user.Username); err != nil {
		fail(c, h.log, err)
		return
	}

	h.log.Info("user registered", "user", user.Username)
	c.JSON(http.StatusOK, gin.H{"message": "Registration successful!", "userId": user.ID})
}

func (h *UserHandler) Login(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Username == "" || body.Password == "" {
		fail(c, h.log, httperr.Validation("Validation failed"))
		return
	}

	var user models.User
	err := h.db.Where("username = ?", body.Username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, h.log, httperr.Database(err, "Error during login"))
		return
	}
	if err == nil && user.IsGoogleUser {
		fail(c, h.log, httperr.Forbidden("Login with Google is required for this account!"))
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		fail(c, h.log, httperr.Authentication("Invalid credentials"))
		return
	}

	if err := h.setAuthCookies(c, user.Username); err != nil {
		fail(c, h.log, err)
		return
	}

	h.log.Info("user logged in", "user", user.Username)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful!", "userId": user.ID})
}

func (h *UserHandler) Logout(c *gin.Context) {
	secure := h.cfg.Production
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", "", secure, secure)
	c.SetCookie(middleware.RefreshCookie, "", -1, "/", "", secure, secure)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *UserHandler) setAuthCookies(c *gin.Context, username string) error {
	accessToken, refreshToken, err := h.manager.GenerateTokens(username)
	if err != nil {
		return httperr.Database(err, "could not sign tokens")
	}
	secure := h.cfg.Production
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, accessToken, int(h.manager.AccessTTL().Seconds()), "/", "", secure, secure)
	c.SetCookie(middleware.RefreshCookie, refreshToken, int(h.manager.RefreshTTL().Seconds()), "/", "", secure, secure)
	return nil
}

// validPassword: 8-64 chars with at least one letter, one digit and one
// special character from the allowed set.
func validPassword(pw string) bool {
	if len(pw) < 8 || len(pw) > 64 {
		return false
	}
	var letter, digit, special bool
	for _, r := range pw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return letter && digit && special
}
