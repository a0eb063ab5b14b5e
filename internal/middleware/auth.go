package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/linkvault/internal/auth"
	"github.com/linkvault/internal/models"
)

const (
	userContextKey    = "authUser"
	sessionContextKey = "authSession"
	bearerContextKey  = "authBearer"
)

// resolveCaller attaches the caller's identity to the context when a valid
// bearer token is presented. It never advances the handler chain; that is
// the caller's decision. Returns false after aborting on a store failure.
func resolveCaller(c *gin.Context, authService *auth.Service) bool {
	token := BearerToken(c)
	if token == "" {
		return true
	}
	user, session, err := authService.Resolve(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve session"})
		return false
	}
	if user != nil {
		c.Set(userContextKey, user)
		c.Set(sessionContextKey, session)
		c.Set(bearerContextKey, token)
	}
	return true
}

// OptionalAuth attaches the caller's identity when a valid bearer token is
// presented and proceeds anonymously otherwise. Share access is decided per
// share, so most routes use this instead of a hard requirement.
func OptionalAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !resolveCaller(c, authService) {
			return
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a resolvable identity before the rest
// of the chain runs.
func RequireAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !resolveCaller(c, authService) {
			return
		}
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated caller, nil for anonymous requests.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userContextKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// BearerToken extracts the bearer credential from the Authorization header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
