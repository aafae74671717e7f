package rbac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"callflex/internal/auth"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
)

type MembershipReader interface {
	Membership(ctx context.Context, orgID, userID string) (tenants.Membership, error)
}

const membershipKey = "rbac.membership"

// maxPeekBytes bounds how much of a JSON body is read to find organizationId.
const maxPeekBytes = 1 << 20

// RequireMembership loads the caller's membership in the organization named
// by ?organizationId= or an organizationId field in a JSON body, and rejects
// roles outside roles. Membership is read on every request, so role changes
// apply immediately.
func RequireMembership(store MembershipReader, roles ...tenants.Role) gin.HandlerFunc {
	return require(store, organizationFromRequest, roles)
}

// RequireOrganizationParam is RequireMembership for /organizations/:id routes.
func RequireOrganizationParam(store MembershipReader, roles ...tenants.Role) gin.HandlerFunc {
	return require(store, func(c *gin.Context) string { return c.Param("id") }, roles)
}

func require(store MembershipReader, orgOf func(*gin.Context) string, roles []tenants.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c.Request.Context())
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		orgID := orgOf(c)
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "organizationId required"})
			return
		}

		m, err := Authorize(c.Request.Context(), store, orgID, userID, roles...)
		if errors.Is(err, tenants.ErrForbidden) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
			return
		}
		if err != nil {
			logger.CaptureError(c.Request.Context(), "rbac: load membership", err, "organization_id", orgID)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.Set(membershipKey, m)
		c.Next()
	}
}

// Authorize is the check behind the middleware, for routes that only learn
// the organization after loading a row. A missing membership and a role
// outside roles both return tenants.ErrForbidden.
func Authorize(ctx context.Context, store MembershipReader, orgID, userID string, roles ...tenants.Role) (tenants.Membership, error) {
	if len(roles) == 0 {
		roles = AnyMember
	}
	m, err := store.Membership(ctx, orgID, userID)
	if errors.Is(err, tenants.ErrNotFound) {
		return tenants.Membership{}, tenants.ErrForbidden
	}
	if err != nil {
		return tenants.Membership{}, err
	}
	if !allowed(m.Role, roles) {
		return tenants.Membership{}, tenants.ErrForbidden
	}
	return m, nil
}

// Membership returns what RequireMembership stored.
func Membership(c *gin.Context) (tenants.Membership, bool) {
	v, ok := c.Get(membershipKey)
	if !ok {
		return tenants.Membership{}, false
	}
	m, ok := v.(tenants.Membership)
	return m, ok
}

// OrganizationID is the organization the request was authorized for.
func OrganizationID(c *gin.Context) string {
	m, _ := Membership(c)
	return m.OrganizationID
}

// organizationFromRequest leaves the body readable for the handler.
func organizationFromRequest(c *gin.Context) string {
	if id := c.Query("organizationId"); id != "" {
		return id
	}
	if c.Request.Body == nil || c.ContentType() != gin.MIMEJSON {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBytes))
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var peek struct {
		OrganizationID string `json:"organizationId"`
	}
	_ = json.Unmarshal(body, &peek)
	return peek.OrganizationID
}
