package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callflex/internal/templates"
)

func (h Handlers) ListTemplates(c *gin.Context) {
	list, err := h.Templates.List(c.Request.Context(), templates.Filter{
		IndustrySlug: c.Query("industry"),
		Category:     c.Query("category"),
		FeaturedOnly: c.Query("featured") == "true",
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

func (h Handlers) GetTemplate(c *gin.Context) {
	t, err := h.Templates.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": t})
}

func (h Handlers) ListIndustries(c *gin.Context) {
	list, err := h.Templates.ListIndustries(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"industries": list})
}
