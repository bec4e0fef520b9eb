package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/solvemate/solvemate-api/internal/logger"
)

// Context keys use a custom type to avoid collisions.
type contextKey string

const (
	// UserIDKey is the context key for the canonical user ID (sub).
	UserIDKey contextKey = "user_id"
	// UserEmailKey is the context key for the user's email, when present.
	UserEmailKey contextKey = "user_email"
	// AccessTokenKey is the context key for the raw bearer token. Account
	// handlers forward it to the auth backend for user-scoped calls.
	AccessTokenKey contextKey = "access_token"
)

type Middleware struct {
	validator TokenValidator
}

func NewMiddleware(validator TokenValidator) *Middleware {
	return &Middleware{validator: validator}
}

// bearerToken extracts the bearer token from the request. Browser WebSocket
// API doesn't support custom headers during upgrade, so websocket requests may
// pass the token as a query parameter instead.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")

	if authHeader == "" && strings.EqualFold(c.Request.Header.Get("Upgrade"), "websocket") {
		if token := c.Query("token"); token != "" {
			authHeader = "Bearer " + token
		}
	}

	if authHeader == "" {
		return "", false
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	return token, token != ""
}

func (m *Middleware) attach(c *gin.Context, info UserInfo, token string) {
	ctx := logger.WithUserID(c.Request.Context(), info.UserID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(string(UserIDKey), info.UserID)
	c.Set(string(UserEmailKey), info.Email)
	c.Set(string(AccessTokenKey), token)
}

// RequireAuth validates the bearer token and attaches the identity to the
// request context. Requests without a valid token are rejected.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must be a Bearer token"})
			return
		}

		info, err := m.validator.ExtractUserInfo(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		m.attach(c, info, token)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid token is present but lets
// anonymous requests through. Analysis sessions work for guests; only history
// persistence requires an identity. A token that is present but invalid is
// still rejected, so a client never silently runs as a guest.
func (m *Middleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		info, err := m.validator.ExtractUserInfo(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		m.attach(c, info, token)
		c.Next()
	}
}

// GetUserID extracts the canonical user ID from the Gin context. The second
// return is false for anonymous requests.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(string(UserIDKey))
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	return id, ok && id != ""
}

// GetUserEmail extracts the user email from the Gin context.
func GetUserEmail(c *gin.Context) (string, bool) {
	email, exists := c.Get(string(UserEmailKey))
	if !exists {
		return "", false
	}

	e, ok := email.(string)
	return e, ok && e != ""
}

// GetAccessToken extracts the raw bearer token from the Gin context.
func GetAccessToken(c *gin.Context) (string, bool) {
	token, exists := c.Get(string(AccessTokenKey))
	if !exists {
		return "", false
	}

	t, ok := token.(string)
	return t, ok && t != ""
}
