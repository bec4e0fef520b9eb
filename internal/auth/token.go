package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNoJWKS       = errors.New("no JWKS URL provided")
)

// StandardClaims represents the standard claims in a JWT token.
type StandardClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserInfo contains the identity extracted from a validated token.
type UserInfo struct {
	// UserID is the canonical identity key (sub). History rows and session
	// ownership are keyed by it.
	UserID string
	// Email is informational; may be empty for OAuth providers without one.
	Email string
}

// TokenValidator validates a bearer token and extracts the caller identity.
type TokenValidator interface {
	ExtractUserInfo(tokenString string) (UserInfo, error)
}
