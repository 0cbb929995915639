package abuse

import (
	"net"
	"strings"
	"time"
)

// OriginBlock marks a request origin (client IP) as blocked for one business.
// Blocks are managed outside this service and only read here.
type OriginBlock struct {
	OriginID   string     `json:"origin_id" db:"origin_id"`
	BusinessID string     `json:"business_id" db:"business_id"`
	Active     bool       `json:"active" db:"active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Reason     string     `json:"reason,omitempty" db:"reason"`
}

// BlocksAt reports whether the block applies at now.
func (b OriginBlock) BlocksAt(now time.Time) bool {
	if !b.Active {
		return false
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

// Policy is the call rate rule: more than Threshold calls for one table
// within Window silences the table.
type Policy struct {
	Threshold int
	Window    time.Duration
}

// NormalizeOrigin canonicalises IP literals so that, for example, an
// IPv4-mapped IPv6 address matches its IPv4 block entry. Non-IP origins are
// only trimmed.
func NormalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	if ip := net.ParseIP(origin); ip != nil {
		return ip.String()
	}
	return origin
}
