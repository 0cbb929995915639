package silence

import "time"

type Reason string

const (
	ReasonAutomatic Reason = "automatic"
	ReasonManual    Reason = "manual"
)

// Silence suppresses new calls for a table. At most one row per table has
// UnsilencedAt == nil.
type Silence struct {
	ID         string `json:"id" db:"id"`
	TableID    string `json:"table_id" db:"table_id"`
	BusinessID string `json:"business_id" db:"business_id"`
	Reason     Reason `json:"reason" db:"reason"`

	// StaffID is who silenced the table; empty for automatic silences.
	StaffID string `json:"staff_id,omitempty" db:"staff_id"`

	SilencedAt   time.Time  `json:"silenced_at" db:"silenced_at"`
	UnsilencedAt *time.Time `json:"unsilenced_at,omitempty" db:"unsilenced_at"`
	UnsilencedBy string     `json:"unsilenced_by,omitempty" db:"unsilenced_by"`

	// ExpiresAt is set for automatic silences with a finite duration.
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`

	// CallCount is the in-window call count that triggered an automatic
	// silence; 0 for manual silences.
	CallCount int    `json:"call_count" db:"call_count"`
	Notes     string `json:"notes,omitempty" db:"notes"`
}

// Open reports whether the row has not been closed yet. An open row may
// still be expired.
func (s Silence) Open() bool { return s.UnsilencedAt == nil }

func (s Silence) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// ActiveAt reports whether the silence suppresses calls at now.
func (s Silence) ActiveAt(now time.Time) bool {
	return s.Open() && !s.Expired(now)
}
