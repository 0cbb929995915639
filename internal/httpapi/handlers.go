package httpapi

import (
	"context"
	"net/http"
	"time"

	"tableservice-platform/internal/auth"
	"tableservice-platform/internal/calls"
	"tableservice-platform/internal/rbac"
	"tableservice-platform/internal/realtime"
	"tableservice-platform/internal/reporting"
	"tableservice-platform/internal/silence"
	"tableservice-platform/internal/tables"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Calls    *calls.Manager
	Tables   tables.Directory
	Silences *silence.Service
	Hub      *realtime.Hub
	Reports  *reporting.Service

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type identity struct {
	StaffID    string
	BusinessID string
	Role       string
}

func identityFrom(ctx context.Context) identity {
	var id identity
	id.StaffID, _ = auth.StaffID(ctx)
	id.BusinessID, _ = auth.BusinessID(ctx)
	id.Role, _ = auth.Role(ctx)
	return id
}

// scope is the business a caller is limited to. Super admins are not limited.
func (id identity) scope() string {
	if rbac.IsSuperAdmin(id.Role) {
		return ""
	}
	return id.BusinessID
}

// Convenience middleware bundles.

func RequireBusinessAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireBusiness(), rbac.RequireAnyRole(roles...)}
}
