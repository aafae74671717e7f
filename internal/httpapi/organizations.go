package httpapi

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/auth"
	"callflex/internal/rbac"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
	"callflex/pkg/utils"
)

func (h Handlers) ListOrganizations(c *gin.Context) {
	ctx := c.Request.Context()
	orgs, err := h.Tenants.ListOrganizationsForUser(ctx, auth.UserID(ctx))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

func (h Handlers) GetOrganization(c *gin.Context) {
	m, _ := rbac.Membership(c)
	org, err := h.Tenants.GetOrganization(c.Request.Context(), m.OrganizationID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organization": org, "role": m.Role})
}

type organizationPatchRequest struct {
	Name         *string     `json:"name" binding:"omitempty,min=1,max=200"`
	BusinessType *string     `json:"business_type" binding:"omitempty,max=100"`
	Timezone     *string     `json:"timezone"`
	PrimaryPhone *string     `json:"primary_phone" binding:"omitempty,e164"`
	Website      *string     `json:"website" binding:"omitempty,url"`
	Settings     utils.JSONB `json:"settings"`
}

func (h Handlers) UpdateOrganization(c *gin.Context) {
	var req organizationPatchRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil || *req.Timezone == "" {
			invalidField(c, "timezone", "timezone")
			return
		}
	}
	if len(req.Settings) > 0 && !bytes.HasPrefix(bytes.TrimSpace(req.Settings), []byte("{")) {
		invalidField(c, "settings", "object")
		return
	}

	org, err := h.Tenants.UpdateOrganization(c.Request.Context(), rbac.OrganizationID(c), tenants.OrganizationPatch{
		Name:         req.Name,
		BusinessType: req.BusinessType,
		Timezone:     req.Timezone,
		PrimaryPhone: req.PrimaryPhone,
		Website:      req.Website,
		Settings:     req.Settings,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organization": org})
}

func (h Handlers) ListMembers(c *gin.Context) {
	members, err := h.Tenants.ListMembers(c.Request.Context(), rbac.OrganizationID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type memberRoleRequest struct {
	Role tenants.Role `json:"role" binding:"required,oneof=owner admin member"`
}

func (h Handlers) UpdateMemberRole(c *gin.Context) {
	var req memberRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	orgID, userID := rbac.OrganizationID(c), c.Param("userId")

	m, err := h.Tenants.UpdateMemberRole(ctx, orgID, userID, req.Role)
	if err != nil {
		if isNotFound(err) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}
		fail(c, err)
		return
	}
	logger.From(ctx).Info("member role changed", "org_id", orgID, "user_id", userID, "role", req.Role)
	c.JSON(http.StatusOK, gin.H{"success": true, "member": m})
}

func (h Handlers) RemoveMember(c *gin.Context) {
	ctx := c.Request.Context()
	self, _ := rbac.Membership(c)
	userID := c.Param("userId")
	if userID == self.UserID {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Cannot remove yourself"})
		return
	}
	if err := h.Tenants.RemoveMember(ctx, self.OrganizationID, userID); err != nil {
		if isNotFound(err) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Member not found"})
			return
		}
		fail(c, err)
		return
	}
	logger.From(ctx).Info("member removed", "org_id", self.OrganizationID, "user_id", userID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// OrganizationEvents streams the tenant's realtime broadcasts as server-sent
// events until the client goes away.
func (h Handlers) OrganizationEvents(c *gin.Context) {
	ctx := c.Request.Context()
	orgID := rbac.OrganizationID(c)

	msgs, cancel, err := h.Realtime.Subscribe(ctx, orgID)
	if err != nil {
		fail(c, err)
		return
	}
	defer cancel()

	keepAlive := h.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			c.SSEvent(m.Event, m.Payload)
		case <-ticker.C:
			_, _ = c.Writer.WriteString(": ping\n\n")
		}
		c.Writer.Flush()
	}
}
