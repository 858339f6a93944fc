// Package auth issues and verifies the bearer tokens that scope API
// requests to an owner.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates an expired, malformed or mis-signed token.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the owner identity inside a token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens with a shared secret.
type Manager struct {
	secretKey []byte
	tokenDur  time.Duration
}

// NewManager creates a token manager. ttl bounds token validity.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secretKey: []byte(secret),
		tokenDur:  ttl,
	}
}

// Issue generates a signed token for the given username.
func (m *Manager) Issue(username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// Verify parses a token string and returns the owner it identifies.
func (m *Manager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" {
		return "", ErrInvalidToken
	}
	return claims.Username, nil
}
