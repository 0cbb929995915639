package calls

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"tableservice-platform/internal/audit"
	"tableservice-platform/internal/metrics"
	"tableservice-platform/internal/tables"
	"tableservice-platform/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrTableUnavailable  = errors.New("calls: table unavailable")
	ErrInvalidTransition = errors.New("calls: invalid transition")
	ErrNotAuthorized     = errors.New("calls: not authorized")
	ErrNotFound          = errors.New("calls: not found")
	ErrDuplicateCall     = errors.New("calls: duplicate call id")

	// ErrBlockedOrigin never leaves this service; callers see a success.
	ErrBlockedOrigin = errors.New("calls: blocked origin")
)

// MaxMessageLength caps the optional customer message, in runes.
const MaxMessageLength = 500

// casAttempts bounds re-reads after losing a status compare-and-swap.
const casAttempts = 3

// Guard screens call attempts. OriginBlocked is consulted before any other
// check; RecordAttempt runs once the table is known to be available and may
// silence the table for subsequent attempts.
type Guard interface {
	OriginBlocked(ctx context.Context, t tables.Table, originID string) (bool, error)
	RecordAttempt(ctx context.Context, t tables.Table) error
}

// SilenceChecker reports whether a table currently has an active silence.
type SilenceChecker interface {
	IsSilenced(ctx context.Context, tableID string) (bool, error)
}

// Dispatcher fans a call's new state out to observers. It must not block.
type Dispatcher interface {
	CallChanged(ctx context.Context, c Call)
}

type CreateRequest struct {
	TableID  string
	Message  string
	Metadata map[string]any
	OriginID string
}

type CancelRequest struct {
	CallID string
	Reason string

	// BusinessID, when set, must match the call's business.
	BusinessID   string
	ActorStaffID string
	ActorRole    string
}

// Manager owns the call state machine and is the only writer of calls.
type Manager struct {
	repo   Repository
	tables tables.Directory

	Guard      Guard
	Silences   SilenceChecker
	Dispatcher Dispatcher
	Audit      *audit.Service
	Metrics    *metrics.Metrics

	// SingleActiveCall makes create return a table's open call instead of
	// opening a second one.
	SingleActiveCall bool

	Now   func() time.Time
	NewID func() string
}

func NewManager(repo Repository, dir tables.Directory) *Manager {
	return &Manager{
		repo:   repo,
		tables: dir,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

// Create opens a pending call for the table's assigned staff member.
//
// It returns ErrBlockedOrigin when the origin is blocked and
// ErrTableUnavailable when the table is unknown, has notifications off, has
// nobody assigned or is silenced.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Call, error) {
	log := logger.From(ctx).With("table_id", req.TableID)

	t, err := m.tables.Get(ctx, req.TableID)
	if errors.Is(err, tables.ErrNotFound) {
		m.Metrics.CallCreate(metrics.OutcomeUnavailable)
		return Call{}, ErrTableUnavailable
	}
	if err != nil {
		m.Metrics.CallCreate(metrics.OutcomeError)
		return Call{}, fmt.Errorf("load table: %w", err)
	}

	if m.Guard != nil && req.OriginID != "" {
		blocked, err := m.Guard.OriginBlocked(ctx, t, req.OriginID)
		if err != nil {
			log.Warn("origin block check failed, allowing", "err", err)
		}
		if blocked {
			m.Metrics.CallCreate(metrics.OutcomeBlocked)
			return Call{}, ErrBlockedOrigin
		}
	}

	if !t.NotificationsEnabled || !t.HasAssignee() {
		m.Metrics.CallCreate(metrics.OutcomeUnavailable)
		return Call{}, ErrTableUnavailable
	}
	if m.Silences != nil {
		silenced, err := m.Silences.IsSilenced(ctx, t.ID)
		if err != nil {
			m.Metrics.CallCreate(metrics.OutcomeError)
			return Call{}, fmt.Errorf("check silence: %w", err)
		}
		if silenced {
			m.Metrics.CallCreate(metrics.OutcomeUnavailable)
			return Call{}, ErrTableUnavailable
		}
	}

	if m.SingleActiveCall {
		open, ok, err := m.repo.ActiveForTable(ctx, t.ID)
		if err != nil {
			m.Metrics.CallCreate(metrics.OutcomeError)
			return Call{}, fmt.Errorf("active call lookup: %w", err)
		}
		if ok {
			m.Metrics.CallCreate(metrics.OutcomeExisting)
			return open, nil
		}
	}

	if m.Guard != nil {
		if err := m.Guard.RecordAttempt(ctx, t); err != nil {
			log.Warn("call rate check failed, allowing", "err", err)
		}
	}

	c := Call{
		ID:         m.NewID(),
		TableID:    t.ID,
		BusinessID: t.BusinessID,
		StaffID:    t.AssignedStaffID,
		Status:     StatusPending,
		Message:    normalizeMessage(req.Message),
		Metadata:   cloneMetadata(req.Metadata),
		CalledAt:   m.Now().UTC(),
		Version:    1,
	}
	if err := m.repo.Insert(ctx, c); err != nil {
		m.Metrics.CallCreate(metrics.OutcomeError)
		return Call{}, fmt.Errorf("insert call: %w", err)
	}

	m.Metrics.CallCreate(metrics.OutcomeCreated)
	log.Debug("call created", "call_id", c.ID, "staff_id", c.StaffID)
	m.dispatch(ctx, c)
	return c, nil
}

// Acknowledge moves a pending call to acknowledged. Only the assigned staff
// member may acknowledge.
func (m *Manager) Acknowledge(ctx context.Context, callID, staffID string) (Call, error) {
	c, err := m.transition(ctx, callID, StatusAcknowledged, staffMatches(staffID), func(c *Call, now time.Time) {
		c.AcknowledgedAt = &now
	})
	if err != nil {
		return c, err
	}
	if r := c.Metrics().ResponseSeconds; r != nil {
		m.Metrics.ObserveResponse(*r)
	}
	return c, nil
}

// Complete closes a pending or acknowledged call. Only the assigned staff
// member may complete.
func (m *Manager) Complete(ctx context.Context, callID, staffID string) (Call, Metrics, error) {
	c, err := m.transition(ctx, callID, StatusCompleted, staffMatches(staffID), func(c *Call, now time.Time) {
		if c.AcknowledgedAt != nil && now.Before(*c.AcknowledgedAt) {
			now = *c.AcknowledgedAt
		}
		c.CompletedAt = &now
	})
	if err != nil {
		return c, Metrics{}, err
	}
	return c, c.Metrics(), nil
}

// Cancel ends a pending or acknowledged call on behalf of an operator or the
// system. There is no staff match requirement.
func (m *Manager) Cancel(ctx context.Context, req CancelRequest) (Call, error) {
	authorize := func(c Call) error {
		if req.BusinessID != "" && req.BusinessID != c.BusinessID {
			return ErrNotAuthorized
		}
		return nil
	}
	reason := strings.TrimSpace(req.Reason)
	c, err := m.transition(ctx, req.CallID, StatusCancelled, authorize, func(c *Call, now time.Time) {
		c.CancelledAt = &now
		c.CancelReason = reason
	})
	if err != nil {
		return c, err
	}

	if m.Audit != nil {
		if err := m.Audit.LogCallCancelled(ctx, c.BusinessID, c.TableID, c.ID, req.ActorStaffID, req.ActorRole, reason); err != nil {
			logger.From(ctx).Warn("audit call cancel failed", "call_id", c.ID, "err", err)
		}
	}
	return c, nil
}

// Get returns a call by id.
func (m *Manager) Get(ctx context.Context, callID string) (Call, error) {
	return m.repo.Get(ctx, callID)
}

func (m *Manager) transition(
	ctx context.Context,
	callID string,
	next Status,
	authorize func(Call) error,
	apply func(c *Call, now time.Time),
) (Call, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		cur, err := m.repo.Get(ctx, callID)
		if err != nil {
			return Call{}, err
		}
		if !cur.Status.CanTransitionTo(next) {
			m.Metrics.TransitionRejected("invalid_transition")
			return cur, ErrInvalidTransition
		}
		if authorize != nil {
			if err := authorize(cur); err != nil {
				m.Metrics.TransitionRejected("not_authorized")
				return cur, err
			}
		}

		now := m.Now().UTC()
		if now.Before(cur.CalledAt) {
			now = cur.CalledAt
		}
		updated := cur.Clone()
		updated.Status = next
		updated.Version = cur.Version + 1
		apply(&updated, now)

		swapped, err := m.repo.CompareAndSwap(ctx, cur, updated)
		if err != nil {
			return cur, err
		}
		if !swapped {
			// someone else moved the call; re-read and re-evaluate
			continue
		}

		m.Metrics.Transition(string(next))
		m.dispatch(ctx, updated)
		return updated, nil
	}

	m.Metrics.TransitionRejected("contention")
	cur, err := m.repo.Get(ctx, callID)
	if err != nil {
		return Call{}, err
	}
	return cur, ErrInvalidTransition
}

func (m *Manager) dispatch(ctx context.Context, c Call) {
	if m.Dispatcher == nil {
		return
	}
	m.Dispatcher.CallChanged(ctx, c.Clone())
}

func staffMatches(staffID string) func(Call) error {
	return func(c Call) error {
		if staffID == "" || c.StaffID != staffID {
			return ErrNotAuthorized
		}
		return nil
	}
}

func normalizeMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= MaxMessageLength {
		return msg
	}
	return string([]rune(msg)[:MaxMessageLength])
}

func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
