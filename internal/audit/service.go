package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Audit is internal-only and never exposed to customers. Callers treat audit
// logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.BusinessID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogSilence records a table silence. actorStaffID is empty for automatic silences.
func (s *Service) LogSilence(ctx context.Context, businessID, tableID, silenceID, actorStaffID, actorRole, reason string, callCount int) error {
	return s.Append(ctx, Event{
		BusinessID:   businessID,
		Type:         EventTypeTableSilenced,
		ActorStaffID: actorStaffID,
		ActorRole:    actorRole,
		TableID:      tableID,
		SilenceID:    silenceID,
		Message:      "table silenced",
		Metadata:     encodeMetadata(map[string]any{"reason": reason, "call_count": callCount}),
	})
}

func (s *Service) LogUnsilence(ctx context.Context, businessID, tableID, silenceID, actorStaffID, actorRole string) error {
	msg := "table unsilenced"
	if actorStaffID == "" {
		msg = "automatic silence expired"
	}
	return s.Append(ctx, Event{
		BusinessID:   businessID,
		Type:         EventTypeTableUnsilenced,
		ActorStaffID: actorStaffID,
		ActorRole:    actorRole,
		TableID:      tableID,
		SilenceID:    silenceID,
		Message:      msg,
	})
}

// LogOriginBlocked records a call attempt rejected because its origin is blocked.
// The customer never learns about this record.
func (s *Service) LogOriginBlocked(ctx context.Context, businessID, tableID, originID string) error {
	return s.Append(ctx, Event{
		BusinessID: businessID,
		Type:       EventTypeOriginBlocked,
		IPAddress:  originID,
		TableID:    tableID,
		Message:    "call attempt from blocked origin",
	})
}

func (s *Service) LogCallCancelled(ctx context.Context, businessID, tableID, callID, actorStaffID, actorRole, reason string) error {
	return s.Append(ctx, Event{
		BusinessID:   businessID,
		Type:         EventTypeCallCancelled,
		ActorStaffID: actorStaffID,
		ActorRole:    actorRole,
		TableID:      tableID,
		CallID:       callID,
		Message:      "call cancelled",
		Metadata:     encodeMetadata(map[string]any{"reason": reason}),
	})
}

func encodeMetadata(m map[string]any) string {
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
