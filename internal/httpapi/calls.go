package httpapi

import (
	"errors"
	"net/http"

	"tableservice-platform/internal/calls"
	"tableservice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type createCallRequest struct {
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// CreateCall is the customer-facing "call a waiter" button. It is public; the
// client IP is the origin checked against the block list.
func (h Handlers) CreateCall(c *gin.Context) {
	var req createCallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	res, err := h.Calls.CreateCall(c.Request.Context(), calls.CreateRequest{
		TableID:  c.Param("table_id"),
		Message:  req.Message,
		Metadata: req.Metadata,
		OriginID: c.ClientIP(),
	})
	if err != nil {
		logger.FromGin(c).Error("create call failed", "table_id", c.Param("table_id"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call creation failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) GetCall(c *gin.Context) {
	id := identityFrom(c.Request.Context())
	call, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, calls.ErrNotFound) || (err == nil && id.scope() != "" && call.BusinessID != id.scope()) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "message": calls.MsgCallNotFound})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("get call failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "call": call, "metrics": call.Metrics()})
}

func (h Handlers) AcknowledgeCall(c *gin.Context) {
	id := identityFrom(c.Request.Context())
	res, err := h.Calls.AcknowledgeCall(c.Request.Context(), c.Param("call_id"), id.StaffID)
	h.writeTransition(c, res, err)
}

func (h Handlers) CompleteCall(c *gin.Context) {
	id := identityFrom(c.Request.Context())
	res, err := h.Calls.CompleteCall(c.Request.Context(), c.Param("call_id"), id.StaffID)
	h.writeTransition(c, res, err)
}

type cancelCallRequest struct {
	Reason string `json:"reason"`
}

// CancelCall lets an owner or manager withdraw a call.
func (h Handlers) CancelCall(c *gin.Context) {
	var req cancelCallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	id := identityFrom(c.Request.Context())
	res, err := h.Calls.CancelCall(c.Request.Context(), calls.CancelRequest{
		CallID:       c.Param("call_id"),
		Reason:       req.Reason,
		BusinessID:   id.scope(),
		ActorStaffID: id.StaffID,
		ActorRole:    id.Role,
	})
	h.writeTransition(c, res, err)
}

func (h Handlers) writeTransition(c *gin.Context, res calls.TransitionResult, err error) {
	if err != nil {
		logger.FromGin(c).Error("call transition failed", "call_id", c.Param("call_id"), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call update failed"})
		return
	}
	status := http.StatusOK
	switch {
	case res.Success:
	case errors.Is(res.Err, calls.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(res.Err, calls.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(res.Err, calls.ErrNotFound):
		status = http.StatusNotFound
	default:
		status = http.StatusBadRequest
	}
	c.JSON(status, res)
}
