package calls

import (
	"maps"
	"time"
)

// Call is a customer's request for a waiter at one table.
//
// Invariants:
// - called_at <= acknowledged_at <= completed_at whenever they are set.
// - Status only moves forward (see Status.CanTransitionTo).
// - A completed or cancelled call is never modified again.
// - Calls are never deleted.
//
// Version counts applied transitions (1 on create) and is the optimistic
// concurrency token for every status change.
type Call struct {
	ID         string `json:"id" db:"id"`
	TableID    string `json:"table_id" db:"table_id"`
	BusinessID string `json:"business_id" db:"business_id"`
	StaffID    string `json:"staff_id,omitempty" db:"staff_id"`

	Status   Status         `json:"status" db:"status"`
	Message  string         `json:"message,omitempty" db:"message"`
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	CalledAt       time.Time  `json:"called_at" db:"called_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancelReason   string     `json:"cancel_reason,omitempty" db:"cancel_reason"`

	Version int `json:"version" db:"version"`
}

type Status string

const (
	StatusPending      Status = "pending"
	StatusAcknowledged Status = "acknowledged"
	StatusCompleted    Status = "completed"
	StatusCancelled    Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusAcknowledged, StatusCompleted, StatusCancelled},
	StatusAcknowledged: {StatusCompleted, StatusCancelled},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no mutable state with c.
func (c Call) Clone() Call {
	out := c
	out.Metadata = maps.Clone(c.Metadata)
	out.AcknowledgedAt = cloneTime(c.AcknowledgedAt)
	out.CompletedAt = cloneTime(c.CompletedAt)
	out.CancelledAt = cloneTime(c.CancelledAt)
	return out
}

// Metrics are derived from a call's timestamps.
type Metrics struct {
	ResponseSeconds *float64 `json:"response_time_seconds,omitempty"`
	TotalSeconds    *float64 `json:"total_time_seconds,omitempty"`
}

// Metrics computes response_time (acknowledged - called) and total_time
// (completed - called) for whichever timestamps are set.
func (c Call) Metrics() Metrics {
	var m Metrics
	if c.AcknowledgedAt != nil {
		v := c.AcknowledgedAt.Sub(c.CalledAt).Seconds()
		m.ResponseSeconds = &v
	}
	if c.CompletedAt != nil {
		v := c.CompletedAt.Sub(c.CalledAt).Seconds()
		m.TotalSeconds = &v
	}
	return m
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
