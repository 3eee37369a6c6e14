package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Manager signs and verifies the access/refresh cookie pair. Access tokens
// are short-lived; the refresh token rotates a fresh access token without
// another login.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *Manager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

// GenerateTokens signs a new access/refresh pair for a username.
func (m *Manager) GenerateTokens(username string) (accessToken, refreshToken string, err error) {
	accessToken, err = sign(username, m.accessSecret, m.accessTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}
	refreshToken, err = sign(username, m.refreshSecret, m.refreshTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return accessToken, refreshToken, nil
}

// RefreshAccess validates a refresh token and mints a new access token.
func (m *Manager) RefreshAccess(refreshToken string) (username, accessToken string, err error) {
	username, err = verify(refreshToken, m.refreshSecret)
	if err != nil {
		return "", "", err
	}
	accessToken, err = sign(username, m.accessSecret, m.accessTTL)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return username, accessToken, nil
}

// ValidateAccess returns the username carried by a valid access token.
func (m *Manager) ValidateAccess(accessToken string) (string, error) {
	return verify(accessToken, m.accessSecret)
}

func sign(username string, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": username,
		"exp": time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func verify(tokenStr string, secret []byte) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	username, ok := claims["sub"].(string)
	if !ok || username == "" {
		return "", fmt.Errorf("invalid sub claim")
	}
	return username, nil
}
