package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
	// browsers cannot set headers on a websocket upgrade
	accessTokenQuery = "access_token"
)

var ErrMissingToken = errors.New("missing bearer token")

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.FromRequest(c.Request, time.Now())
		if errors.Is(err, ErrMissingToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.StaffID, claims.BusinessID, claims.Role)
		c.Request = c.Request.WithContext(ctx)

		c.Set("staff_id", claims.StaffID)
		c.Set("business_id", claims.BusinessID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// FromRequest extracts and verifies the access token carried by r, either
// as a bearer header or as the access_token query parameter.
func (m *Manager) FromRequest(r *http.Request, now time.Time) (Claims, error) {
	tok := ""
	raw := strings.TrimSpace(r.Header.Get(authorizationHeader))
	if strings.HasPrefix(raw, bearerPrefix) {
		tok = strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	if tok == "" {
		tok = strings.TrimSpace(r.URL.Query().Get(accessTokenQuery))
	}
	if tok == "" {
		return Claims{}, ErrMissingToken
	}
	return m.Verify(tok, TokenTypeAccess, now)
}
