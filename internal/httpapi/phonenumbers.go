package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callflex/internal/phonenumbers"
	"callflex/internal/rbac"
	"callflex/internal/tenants"
)

func (h Handlers) ListPhoneNumbers(c *gin.Context) {
	list, err := h.PhoneNumbers.List(c.Request.Context(), rbac.OrganizationID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phoneNumbers": list})
}

func (h Handlers) SearchPhoneNumbers(c *gin.Context) {
	var in phonenumbers.SearchInput
	if !bindJSON(c, &in) || !sameOrganization(c, in.OrganizationID) {
		return
	}
	found, err := h.PhoneNumbers.Search(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"availableNumbers": found})
}

func (h Handlers) ProvisionPhoneNumber(c *gin.Context) {
	var in phonenumbers.ProvisionInput
	if !bindJSON(c, &in) || !sameOrganization(c, in.OrganizationID) {
		return
	}
	n, err := h.PhoneNumbers.Provision(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"phoneNumber": n})
}

func (h Handlers) loadPhoneNumber(c *gin.Context, roles ...tenants.Role) (phonenumbers.PhoneNumber, bool) {
	n, err := h.PhoneNumbers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return phonenumbers.PhoneNumber{}, false
	}
	if !h.authorize(c, n.OrganizationID, roles...) {
		return phonenumbers.PhoneNumber{}, false
	}
	return n, true
}

func (h Handlers) GetPhoneNumber(c *gin.Context) {
	n, ok := h.loadPhoneNumber(c, rbac.AnyMember...)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"phoneNumber": n})
}

func (h Handlers) UpdatePhoneNumber(c *gin.Context) {
	n, ok := h.loadPhoneNumber(c, rbac.AnyMember...)
	if !ok {
		return
	}
	var p phonenumbers.Patch
	if !bindJSON(c, &p) {
		return
	}
	n, err := h.PhoneNumbers.Update(c.Request.Context(), n, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"phoneNumber": n})
}

func (h Handlers) ReleasePhoneNumber(c *gin.Context) {
	n, ok := h.loadPhoneNumber(c, rbac.Managers...)
	if !ok {
		return
	}
	if err := h.PhoneNumbers.Release(c.Request.Context(), n); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
