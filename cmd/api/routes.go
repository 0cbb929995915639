package main

import (
	"net/http"

	"tableservice-platform/internal/httpapi"
	"tableservice-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, metricsHandler http.Handler) {
	// public
	r.GET("/healthz", httpapi.Healthz)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := r.Group("/v1")

	// Customer side: no account, identified by table and client IP.
	v1.POST("/tables/:table_id/calls", h.CreateCall)

	// Auth is checked per channel inside the handler.
	v1.GET("/realtime/ws", h.Subscribe)

	// protected API group
	staff := v1.Group("")
	staff.Use(authMW)
	{
		floor := httpapi.RequireBusinessAndAnyRole(rbac.StaffRoles...)
		admin := httpapi.RequireBusinessAndAnyRole(rbac.AdminRoles...)

		callsGroup := staff.Group("/calls")
		{
			callsGroup.GET("/:call_id", append(floor, h.GetCall)...)
			callsGroup.POST("/:call_id/acknowledge", append(floor, h.AcknowledgeCall)...)
			callsGroup.POST("/:call_id/complete", append(floor, h.CompleteCall)...)
			callsGroup.POST("/:call_id/cancel", append(admin, h.CancelCall)...)
		}

		tablesGroup := staff.Group("/tables")
		{
			tablesGroup.GET("/:table_id/status", append(floor, h.TableStatus)...)
			tablesGroup.POST("/:table_id/silence", append(admin, h.SilenceTable)...)
			tablesGroup.DELETE("/:table_id/silence", append(admin, h.UnsilenceTable)...)
		}

		adminGroup := staff.Group("/admin")
		adminGroup.Use(admin...)
		{
			adminGroup.GET("/calls/summary", h.CallsSummary)
		}
	}
}
