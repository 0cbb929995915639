package httpapi

import (
	"errors"
	"net/http"

	"tableservice-platform/internal/auth"
	"tableservice-platform/internal/rbac"
	"tableservice-platform/internal/realtime"
	"tableservice-platform/internal/tables"
	"tableservice-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Subscribe upgrades to a websocket streaming one channel. table:<id> is open
// to the ordering customer; waiter:<id> needs that waiter's access token and
// business:<id> a token of that business.
func (h Handlers) Subscribe(c *gin.Context) {
	channel := c.Query("channel")
	kind, id, ok := realtime.ParseChannel(channel)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}

	switch kind {
	case realtime.KindTable:
		if _, err := h.Tables.Get(c.Request.Context(), id); err != nil {
			if errors.Is(err, tables.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "table not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "table lookup failed"})
			return
		}
	default:
		claims, err := h.Auth.FromRequest(c.Request, h.now())
		if errors.Is(err, auth.ErrMissingToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if !mayWatch(claims, kind, id) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
	}

	log := logger.FromGin(c)
	if err := h.Hub.ServeWS(c.Writer, c.Request, channel, log); err != nil {
		// the upgrader has already answered the client
		log.Debug("ws upgrade failed", "err", err)
	}
}

func mayWatch(claims auth.Claims, kind, id string) bool {
	if rbac.IsSuperAdmin(claims.Role) {
		return true
	}
	switch kind {
	case realtime.KindWaiter:
		return claims.StaffID == id
	case realtime.KindBusiness:
		return claims.BusinessID == id
	}
	return false
}
