package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"callflex/internal/auth"
	"callflex/internal/rbac"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
)

// Me returns the signed-in user with every organization they belong to and
// their role in each.
func (h Handlers) Me(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := auth.User(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	orgs, err := h.Tenants.ListOrganizationsForUser(ctx, u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "organizations": orgs})
}

type signupRequest struct {
	Email            string `json:"email" binding:"omitempty,email"`
	FullName         string `json:"fullName" binding:"required,min=1,max=200"`
	OrganizationName string `json:"organizationName" binding:"required,min=1,max=200"`
}

// Signup provisions the tenant for an identity the provider has already
// created: the users row, a trial organization and the owner membership.
func (h Handlers) Signup(c *gin.Context) {
	ctx := c.Request.Context()
	claims, ok := auth.Identity(ctx)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req signupRequest
	if !bindJSON(c, &req) {
		return
	}
	email := claims.Email
	if email == "" {
		email = req.Email
	}
	if email == "" {
		invalidField(c, "email", "required")
		return
	}

	now := h.now()
	p, err := h.Tenants.Provision(ctx, tenants.Signup{
		AuthID:           claims.Subject,
		Email:            strings.ToLower(email),
		FullName:         strings.TrimSpace(req.FullName),
		OrganizationName: strings.TrimSpace(req.OrganizationName),
		Slug:             tenants.Slug(req.OrganizationName, now),
		TrialEndsAt:      now.Add(tenants.TrialPeriod),
	})
	if errors.Is(err, tenants.ErrConflict) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Account already exists"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	logger.From(ctx).Info("tenant provisioned", "org_id", p.Organization.ID, "user_id", p.User.ID)
	c.JSON(http.StatusCreated, gin.H{"user": p.User, "organization": p.Organization})
}

type inviteRequest struct {
	Email string       `json:"email" binding:"required,email"`
	Role  tenants.Role `json:"role" binding:"omitempty,oneof=admin member"`
}

// InviteMember records a pending invitation. Delivery of the invite email is
// the identity provider's job.
func (h Handlers) InviteMember(c *gin.Context) {
	var req inviteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Role == "" {
		req.Role = tenants.RoleMember
	}
	ctx := c.Request.Context()
	orgID := rbac.OrganizationID(c)

	members, err := h.Tenants.ListMembers(ctx, orgID)
	if err != nil {
		fail(c, err)
		return
	}
	for _, m := range members {
		if strings.EqualFold(m.Email, req.Email) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Already a member"})
			return
		}
	}

	inv, err := h.Tenants.CreateInvitation(ctx, tenants.Invitation{
		OrganizationID: orgID,
		Email:          req.Email,
		Role:           req.Role,
		InvitedBy:      auth.UserID(ctx),
	})
	if err != nil {
		fail(c, err)
		return
	}
	logger.From(ctx).Info("member invited", "org_id", orgID, "role", inv.Role)
	c.JSON(http.StatusOK, gin.H{"message": "Invite sent", "invitation": inv})
}
