package realtime

import (
	"strings"
	"time"

	"tableservice-platform/internal/calls"
	"tableservice-platform/internal/silence"
)

type EventType string

const (
	EventCallCreated        EventType = "call.created"
	EventCallAcknowledged   EventType = "call.acknowledged"
	EventCallCompleted      EventType = "call.completed"
	EventCallCancelled      EventType = "call.cancelled"
	EventTableStatusChanged EventType = "table.status.changed"
)

// Table status values carried by EventTableStatusChanged.
const (
	TableSilenced   = "silenced"
	TableUnsilenced = "unsilenced"
)

// Event is the message delivered on every transport. It is built once per
// state change and never mutated afterwards.
type Event struct {
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Call       *CallPayload `json:"call,omitempty"`
	Table      *TableStatus `json:"table,omitempty"`
}

// CallPayload is the full call state after the change.
type CallPayload struct {
	CallID         string         `json:"call_id"`
	TableID        string         `json:"table_id"`
	BusinessID     string         `json:"business_id"`
	StaffID        string         `json:"staff_id"`
	Status         calls.Status   `json:"status"`
	Message        string         `json:"message,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CalledAt       time.Time      `json:"called_at"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CancelledAt    *time.Time     `json:"cancelled_at,omitempty"`
	CancelReason   string         `json:"cancel_reason,omitempty"`
	Version        int            `json:"version"`

	ResponseTimeSeconds *float64 `json:"response_time_seconds,omitempty"`
	TotalTimeSeconds    *float64 `json:"total_time_seconds,omitempty"`
}

type TableStatus struct {
	Status       string         `json:"status"`
	TableID      string         `json:"table_id"`
	BusinessID   string         `json:"business_id"`
	SilenceID    string         `json:"silence_id"`
	Reason       silence.Reason `json:"reason"`
	CallCount    int            `json:"call_count,omitempty"`
	SilencedAt   time.Time      `json:"silenced_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	UnsilencedAt *time.Time     `json:"unsilenced_at,omitempty"`
}

func callEventType(s calls.Status) EventType {
	switch s {
	case calls.StatusAcknowledged:
		return EventCallAcknowledged
	case calls.StatusCompleted:
		return EventCallCompleted
	case calls.StatusCancelled:
		return EventCallCancelled
	default:
		return EventCallCreated
	}
}

// CallEvent snapshots c into an event.
func CallEvent(c calls.Call, at time.Time) Event {
	c = c.Clone()
	m := c.Metrics()
	return Event{
		Type:       callEventType(c.Status),
		OccurredAt: at,
		Call: &CallPayload{
			CallID:              c.ID,
			TableID:             c.TableID,
			BusinessID:          c.BusinessID,
			StaffID:             c.StaffID,
			Status:              c.Status,
			Message:             c.Message,
			Metadata:            c.Metadata,
			CalledAt:            c.CalledAt,
			AcknowledgedAt:      c.AcknowledgedAt,
			CompletedAt:         c.CompletedAt,
			CancelledAt:         c.CancelledAt,
			CancelReason:        c.CancelReason,
			Version:             c.Version,
			ResponseTimeSeconds: m.ResponseSeconds,
			TotalTimeSeconds:    m.TotalSeconds,
		},
	}
}

// SilenceEvent snapshots a silence opening or closing.
func SilenceEvent(s silence.Silence, at time.Time) Event {
	status := TableSilenced
	if !s.Open() {
		status = TableUnsilenced
	}
	ts := &TableStatus{
		Status:     status,
		TableID:    s.TableID,
		BusinessID: s.BusinessID,
		SilenceID:  s.ID,
		Reason:     s.Reason,
		CallCount:  s.CallCount,
		SilencedAt: s.SilencedAt,
	}
	if s.ExpiresAt != nil {
		v := *s.ExpiresAt
		ts.ExpiresAt = &v
	}
	if s.UnsilencedAt != nil {
		v := *s.UnsilencedAt
		ts.UnsilencedAt = &v
	}
	return Event{Type: EventTableStatusChanged, OccurredAt: at, Table: ts}
}

// Channel names: waiter:<staff>, table:<table>, business:<business>.
const (
	KindWaiter   = "waiter"
	KindTable    = "table"
	KindBusiness = "business"
)

func WaiterChannel(staffID string) string      { return KindWaiter + ":" + staffID }
func TableChannel(tableID string) string       { return KindTable + ":" + tableID }
func BusinessChannel(businessID string) string { return KindBusiness + ":" + businessID }

// ParseChannel splits "kind:id". Unknown kinds and empty ids are rejected.
func ParseChannel(ch string) (kind, id string, ok bool) {
	kind, id, found := strings.Cut(ch, ":")
	if !found || id == "" {
		return "", "", false
	}
	switch kind {
	case KindWaiter, KindTable, KindBusiness:
		return kind, id, true
	}
	return "", "", false
}

// Channels lists the audiences of e. Call events reach the assigned waiter,
// the table and the business; table status events reach the table and the
// business.
func (e Event) Channels() []string {
	switch {
	case e.Call != nil:
		out := make([]string, 0, 3)
		if e.Call.StaffID != "" {
			out = append(out, WaiterChannel(e.Call.StaffID))
		}
		return append(out, TableChannel(e.Call.TableID), BusinessChannel(e.Call.BusinessID))
	case e.Table != nil:
		return []string{TableChannel(e.Table.TableID), BusinessChannel(e.Table.BusinessID)}
	}
	return nil
}

// Key is the partition key on the event stream.
func (e Event) Key() string {
	if e.Call != nil {
		return e.Call.CallID
	}
	if e.Table != nil {
		return e.Table.TableID
	}
	return ""
}

// MirrorPath is the mirror document path of a call.
func MirrorPath(businessID, tableID, callID string) string {
	return MirrorIndex(businessID, tableID) + "/" + callID
}

func MirrorIndex(businessID, tableID string) string {
	return "businesses/" + businessID + "/tables/" + tableID + "/calls"
}
