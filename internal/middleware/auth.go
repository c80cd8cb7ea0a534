package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"imagevault/internal/models"
	"imagevault/internal/service"
)

const currentUserKey = "current_user"

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	ResolveToken(ctx context.Context, token string) (models.User, error)
}

// Auth accepts either a bearer token from the login endpoint or HTTP Basic
// credentials. The resolved user is stored on the context for handlers.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			user models.User
			err  error
		)

		authHeader := c.GetHeader("Authorization")
		switch {
		case strings.HasPrefix(authHeader, "Bearer "):
			user, err = auth.ResolveToken(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		case strings.HasPrefix(authHeader, "Basic "):
			username, password, ok := c.Request.BasicAuth()
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
				return
			}
			user, err = auth.Authenticate(c.Request.Context(), username, password)
		default:
			c.Header("WWW-Authenticate", `Basic realm="imagevault"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_credentials"})
			return
		}

		if err != nil {
			switch {
			case errors.Is(err, service.ErrUserSuspended):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user_inactive"})
			case errors.Is(err, service.ErrInvalidCredentials):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
			}
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
