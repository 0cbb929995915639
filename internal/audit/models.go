package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - business_id is required for tenancy isolation.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
type Event struct {
	ID         string    `json:"id" db:"id"`
	BusinessID string    `json:"business_id" db:"business_id"`
	Type       EventType `json:"type" db:"type"`

	// ActorStaffID is empty for system-initiated events (automatic silences).
	ActorStaffID string `json:"actor_staff_id,omitempty" db:"actor_staff_id"`
	ActorRole    string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP; for origin_blocked it is the blocked origin.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	TableID   string `json:"table_id,omitempty" db:"table_id"`
	CallID    string `json:"call_id,omitempty" db:"call_id"`
	SilenceID string `json:"silence_id,omitempty" db:"silence_id"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTableSilenced   EventType = "table_silenced"
	EventTypeTableUnsilenced EventType = "table_unsilenced"
	EventTypeOriginBlocked   EventType = "origin_blocked"
	EventTypeCallCancelled   EventType = "call_cancelled"
)
