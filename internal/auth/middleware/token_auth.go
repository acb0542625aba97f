package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmsystem/pmdash/internal/auth"
	"github.com/pmsystem/pmdash/internal/auth/domain"
	"github.com/pmsystem/pmdash/internal/logger"
	projects "github.com/pmsystem/pmdash/internal/projects/domain"
)

// Authenticator validates a raw bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// RequireToken validates the bearer token and stores its claims in the
// context. Any failure answers 401.
func RequireToken(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing bearer token"})
			return
		}

		claims, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidToken) && !errors.Is(err, domain.ErrTokenRevoked) {
				logger.Zlog.Error("authenticate", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid token"})
			return
		}

		c.Set(auth.CtxClaims, claims)
		c.Next()
	}
}

// RequireRole must run after RequireToken. A valid token with the wrong
// role is a 403, not a 401, so clients are not logged out by it.
func RequireRole(role projects.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := auth.ClaimsFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "not authenticated"})
			return
		}
		if claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": "forbidden"})
			return
		}
		c.Next()
	}
}

// extractToken extracts the Bearer token from the Authorization header
func extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return strings.TrimSpace(bearerToken[7:])
	}
	return ""
}
