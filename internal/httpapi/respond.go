package httpapi

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"callflex/internal/assistants"
	"callflex/internal/auth"
	"callflex/internal/billing"
	"callflex/internal/calls"
	"callflex/internal/phonenumbers"
	"callflex/internal/rbac"
	"callflex/internal/reporting"
	"callflex/internal/telephony"
	"callflex/internal/templates"
	"callflex/internal/tenants"
	"callflex/pkg/logger"
)

var registerNames sync.Once

// useJSONFieldNames makes validation errors name fields the way clients send them.
func useJSONFieldNames() {
	registerNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindJSON decodes and validates the body. On failure it writes
// 400 {error, fields} and returns false.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Validation error", "fields": fieldErrors(verrs)})
		return false
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
	return false
}

func fieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out[fe.Field()] = msg
	}
	return out
}

func invalidField(c *gin.Context, field, reason string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Validation error", "fields": map[string]string{field: reason}})
}

var notFoundMessages = []struct {
	err error
	msg string
}{
	{assistants.ErrNotFound, "Assistant not found"},
	{phonenumbers.ErrNotFound, "Phone number not found"},
	{templates.ErrNotFound, "Template not found"},
	{calls.ErrNotFound, "Call not found"},
	{tenants.ErrNotFound, "Organization not found"},
}

// fail maps a service error onto the response envelope. Unexpected errors
// are logged and captured; their text never reaches the client.
func fail(c *gin.Context, err error) {
	for _, nf := range notFoundMessages {
		if errors.Is(err, nf.err) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": nf.msg})
			return
		}
	}

	var status int
	msg := ""
	switch {
	case errors.Is(err, tenants.ErrForbidden):
		status, msg = http.StatusForbidden, "Not authorized"
	case errors.Is(err, phonenumbers.ErrLimitReached):
		status, msg = http.StatusForbidden, "Phone number limit reached. Please upgrade your plan."
	case errors.Is(err, telephony.ErrNumberUnavailable):
		status, msg = http.StatusConflict, "Phone number is no longer available"
	case errors.Is(err, billing.ErrGatewayNotConfigured):
		status, msg = http.StatusServiceUnavailable, "Billing is not configured"
	case errors.Is(err, assistants.ErrInvalidArgument),
		errors.Is(err, phonenumbers.ErrInvalidArgument),
		errors.Is(err, tenants.ErrInvalidArgument),
		errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, telephony.ErrInvalidRequest):
		status, msg = http.StatusBadRequest, err.Error()
	default:
		logger.CaptureError(c.Request.Context(), "api request failed", err, "path", c.FullPath())
		status, msg = http.StatusInternalServerError, "Internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// authorize checks the caller against an organization learned from a loaded row.
func (h Handlers) authorize(c *gin.Context, orgID string, roles ...tenants.Role) bool {
	ctx := c.Request.Context()
	if _, err := rbac.Authorize(ctx, h.Tenants, orgID, auth.UserID(ctx), roles...); err != nil {
		fail(c, err)
		return false
	}
	return true
}

// sameOrganization rejects a body naming a different tenant than the one
// RequireMembership authorized (the query string wins there).
func sameOrganization(c *gin.Context, orgID string) bool {
	if orgID != rbac.OrganizationID(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not authorized"})
		return false
	}
	return true
}
