package httpapi

import (
	"errors"
	"net/http"
	"time"

	"tableservice-platform/internal/reporting"
	"tableservice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const defaultSummaryRange = 24 * time.Hour

// CallsSummary aggregates calls of the caller's business. from/to are RFC3339
// and default to the last 24 hours.
func (h Handlers) CallsSummary(c *gin.Context) {
	id := identityFrom(c.Request.Context())
	businessID := id.BusinessID
	if q := c.Query("business_id"); q != "" && id.scope() == "" {
		businessID = q
	}

	to := h.now()
	from := to.Add(-defaultSummaryRange)
	var err error
	if q := c.Query("to"); q != "" {
		if to, err = time.Parse(time.RFC3339, q); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		if c.Query("from") == "" {
			from = to.Add(-defaultSummaryRange)
		}
	}
	if q := c.Query("from"); q != "" {
		if from, err = time.Parse(time.RFC3339, q); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		BusinessID: businessID,
		StaffID:    c.Query("staff_id"),
		Range:      reporting.TimeRange{From: from.UTC(), To: to.UTC()},
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}
