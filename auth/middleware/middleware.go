package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/swapmybytes/backend/auth"
	"github.com/swapmybytes/backend/httperr"
	"github.com/swapmybytes/backend/models"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	// UserKey is where the resolved principal lives in the gin context.
	UserKey = "currentUser"
)

// AuthRequired resolves the calling principal from the cookie pair. A valid
// refresh cookie always wins and rotates a fresh access cookie; otherwise the
// access cookie is checked. Handlers behind this middleware can rely on a
// loaded *models.User in the context.
func AuthRequired(manager *auth.Manager, db *gorm.DB, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken, _ := c.Cookie(AccessCookie)
		refreshToken, _ := c.Cookie(RefreshCookie)

		if accessToken == "" && refreshToken == "" {
			reject(c, "Tokens are missing, please log in or create an account.")
			return
		}

		var username string
		if refreshToken != "" {
			user, rotated, err := manager.RefreshAccess(refreshToken)
			if err != nil {
				reject(c, "Refresh token not valid.")
				return
			}
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(AccessCookie, rotated, int(manager.AccessTTL().Seconds()), "/", "", secureCookies, secureCookies)
			username = user
		} else {
			user, err := manager.ValidateAccess(accessToken)
			if err != nil {
				reject(c, "Access token expired or invalid. Please send refresh token or log in again.")
				return
			}
			username = user
		}

		var user models.User
		err := db.Where("username = ?", username).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			reject(c, "Account no longer exists.")
			return
		}
		if err != nil {
			e := httperr.Database(err, "could not load user")
			c.AbortWithStatusJSON(e.Status, gin.H{"error": string(e.Kind), "message": e.Message})
			return
		}

		c.Set(UserKey, &user)
		c.Next()
	}
}

func reject(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   string(httperr.KindAuthentication),
		"message": message,
	})
}

// CurrentUser pulls the principal resolved by AuthRequired.
func CurrentUser(c *gin.Context) *models.User {
	return c.MustGet(UserKey).(*models.User)
}
