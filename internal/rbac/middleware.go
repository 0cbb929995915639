package rbac

import (
	"net/http"

	"tableservice-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireBusiness enforces tenant scoping: business_id must exist in context.
func RequireBusiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		bid, err := auth.BusinessID(c.Request.Context())
		if err != nil || bid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "business_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - super_admin bypasses all checks
// - any other role, including ones unknown to this package, needs to be listed
// - tenant isolation is enforced via RequireBusiness (use it in the chain)
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		if IsSuperAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
