package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/tenants"
	"callflex/pkg/logger"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

type UserResolver interface {
	UserByAuthID(ctx context.Context, authID string) (tenants.User, error)
}

// RequireUser verifies the bearer token and loads the user it belongs to.
// Membership checks belong to internal/rbac.
func RequireUser(v *Verifier, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, v)
		if !ok {
			return
		}

		u, err := users.UserByAuthID(c.Request.Context(), claims.Subject)
		if errors.Is(err, tenants.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			return
		}
		if err != nil {
			logger.CaptureError(c.Request.Context(), "auth: resolve user", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims)
		ctx = WithUser(ctx, u)
		ctx = logger.With(ctx, logger.From(ctx).With("user_id", u.ID))
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", u.ID)

		c.Next()
	}
}

// RequireIdentity verifies the bearer token only. Signup uses it: the
// identity exists at the provider but has no users row yet.
func RequireIdentity(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := bearerClaims(c, v)
		if !ok {
			return
		}
		ctx := WithIdentity(c.Request.Context(), claims)
		ctx = logger.With(ctx, logger.From(ctx).With("auth_id", claims.Subject))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerClaims(c *gin.Context, v *Verifier) (Claims, bool) {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization token"})
		return Claims{}, false
	}
	claims, err := v.Verify(strings.TrimPrefix(raw, bearerPrefix), time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return Claims{}, false
	}
	return claims, true
}
