package httpapi

import (
	"errors"
	"net/http"

	"tableservice-platform/internal/silence"
	"tableservice-platform/internal/tables"
	"tableservice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type silenceRequest struct {
	Notes string `json:"notes"`
}

// SilenceTable stops new calls from a table until it is unsilenced.
// Silencing an already silenced table returns the existing silence.
func (h Handlers) SilenceTable(c *gin.Context) {
	var req silenceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	t, ok := h.loadTable(c)
	if !ok {
		return
	}

	id := identityFrom(c.Request.Context())
	s, created, err := h.Silences.Silence(c.Request.Context(), t, silence.ManualRequest{
		BusinessID: id.scope(),
		StaffID:    id.StaffID,
		Role:       id.Role,
		Notes:      req.Notes,
	})
	if h.silenceError(c, err) {
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "silence": s, "created": created})
}

func (h Handlers) UnsilenceTable(c *gin.Context) {
	t, ok := h.loadTable(c)
	if !ok {
		return
	}

	id := identityFrom(c.Request.Context())
	s, err := h.Silences.Unsilence(c.Request.Context(), t, silence.ManualRequest{
		BusinessID: id.scope(),
		StaffID:    id.StaffID,
		Role:       id.Role,
	})
	if h.silenceError(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "silence": s})
}

// TableStatus reports whether a table is currently silenced.
func (h Handlers) TableStatus(c *gin.Context) {
	t, ok := h.loadTable(c)
	if !ok {
		return
	}
	id := identityFrom(c.Request.Context())
	if id.scope() != "" && id.scope() != t.BusinessID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "not authorized"})
		return
	}
	s, silenced, err := h.Silences.Active(c.Request.Context(), t.ID)
	if h.silenceError(c, err) {
		return
	}
	out := gin.H{"success": true, "table_id": t.ID, "silenced": silenced}
	if silenced {
		out["silence"] = s
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) loadTable(c *gin.Context) (tables.Table, bool) {
	t, err := h.Tables.Get(c.Request.Context(), c.Param("table_id"))
	if errors.Is(err, tables.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "message": "table not found"})
		return tables.Table{}, false
	}
	if err != nil {
		logger.FromGin(c).Error("table lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "table lookup failed"})
		return tables.Table{}, false
	}
	return t, true
}

// silenceError writes the response for err and reports whether it did.
func (h Handlers) silenceError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, silence.ErrWrongBusiness):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "message": "not authorized"})
	case errors.Is(err, silence.ErrNotSilenced):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"success": false, "message": "table is not silenced"})
	default:
		logger.FromGin(c).Error("silence operation failed", "table_id", c.Param("table_id"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "silence update failed"})
	}
	return true
}
