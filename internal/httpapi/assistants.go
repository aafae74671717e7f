package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callflex/internal/assistants"
	"callflex/internal/rbac"
	"callflex/internal/tenants"
)

func (h Handlers) ListAssistants(c *gin.Context) {
	list, err := h.Assistants.List(c.Request.Context(), rbac.OrganizationID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assistants": list})
}

func (h Handlers) CreateAssistant(c *gin.Context) {
	var in assistants.CreateInput
	if !bindJSON(c, &in) || !sameOrganization(c, in.OrganizationID) {
		return
	}
	a, err := h.Assistants.Create(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assistant": a})
}

// loadAssistant fetches :id and authorizes the caller against its tenant.
func (h Handlers) loadAssistant(c *gin.Context, roles ...tenants.Role) (assistants.Assistant, bool) {
	a, err := h.Assistants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return assistants.Assistant{}, false
	}
	if !h.authorize(c, a.OrganizationID, roles...) {
		return assistants.Assistant{}, false
	}
	return a, true
}

func (h Handlers) GetAssistant(c *gin.Context) {
	a, ok := h.loadAssistant(c, rbac.AnyMember...)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"assistant": a})
}

func (h Handlers) UpdateAssistant(c *gin.Context) {
	a, ok := h.loadAssistant(c, rbac.AnyMember...)
	if !ok {
		return
	}
	var p assistants.Patch
	if !bindJSON(c, &p) {
		return
	}
	a, err := h.Assistants.Update(c.Request.Context(), a.ID, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assistant": a})
}

func (h Handlers) DeleteAssistant(c *gin.Context) {
	a, ok := h.loadAssistant(c, rbac.Managers...)
	if !ok {
		return
	}
	if err := h.Assistants.Delete(c.Request.Context(), a.ID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h Handlers) SyncAssistant(c *gin.Context) {
	a, ok := h.loadAssistant(c, rbac.AnyMember...)
	if !ok {
		return
	}
	a, err := h.Assistants.Sync(c.Request.Context(), a.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Assistant synced", "assistant": a})
}
