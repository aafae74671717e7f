package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"callflex/internal/calls"
	"callflex/internal/rbac"
	"callflex/internal/reporting"
	"callflex/internal/tenants"
)

type pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.ListFilter{
		OrganizationID: rbac.OrganizationID(c),
		AssistantID:    c.Query("assistantId"),
		Status:         c.Query("status"),
	}
	var ok bool
	if f.Limit, ok = queryInt(c, "limit"); !ok {
		return
	}
	if f.Offset, ok = queryInt(c, "offset"); !ok {
		return
	}
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}
	if f.Status != "" {
		switch calls.Status(f.Status) {
		case calls.StatusInProgress, calls.StatusCompleted, calls.StatusFailed:
		default:
			invalidField(c, "status", "oneof=in-progress completed failed")
			return
		}
	}
	f = f.Normalize(h.now())

	list, total, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"calls": list,
		"pagination": pagination{
			Total:   total,
			Limit:   f.Limit,
			Offset:  f.Offset,
			HasMore: f.Offset+f.Limit < total,
		},
	})
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Calls.Get(c.Request.Context(), rbac.OrganizationID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": call})
}

func (h Handlers) GetTranscript(c *gin.Context) {
	t, err := h.Calls.GetTranscript(c.Request.Context(), rbac.OrganizationID(c), c.Param("id"))
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Transcript not found"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": t})
}

func (h Handlers) GetRecording(c *gin.Context) {
	rec, err := h.Calls.GetRecording(c.Request.Context(), rbac.OrganizationID(c), c.Param("id"))
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Recording not found"})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recording": rec})
}

func (h Handlers) ListActions(c *gin.Context) {
	actions, err := h.Calls.ListActions(c.Request.Context(), rbac.OrganizationID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (h Handlers) CallStats(c *gin.Context) {
	p, err := reporting.ParsePeriod(c.Query("period"))
	if err != nil {
		invalidField(c, "period", "oneof=today week month")
		return
	}
	stats, err := h.Reporting.Overview(c.Request.Context(), rbac.OrganizationID(c), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func queryInt(c *gin.Context, key string) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		invalidField(c, key, "number")
		return 0, false
	}
	return n, true
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	invalidField(c, key, "datetime")
	return time.Time{}, false
}

func isNotFound(err error) bool {
	return errors.Is(err, tenants.ErrNotFound) || errors.Is(err, calls.ErrNotFound)
}
