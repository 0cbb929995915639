package silence

import (
	"context"
	"errors"
	"strings"
	"time"

	"tableservice-platform/internal/audit"
	"tableservice-platform/internal/metrics"
	"tableservice-platform/internal/tables"
	"tableservice-platform/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("silence: not found")
	ErrNotSilenced   = errors.New("silence: table is not silenced")
	ErrConflict      = errors.New("silence: concurrent change")
	ErrWrongBusiness = errors.New("silence: table belongs to another business")
)

// expireBatch bounds how many silences one sweep closes.
const expireBatch = 200

// Publisher is told about every silence that opens or closes.
type Publisher interface {
	SilenceChanged(ctx context.Context, s Silence)
}

type ManualRequest struct {
	BusinessID string
	StaffID    string
	Role       string
	Notes      string
}

// Service owns table silences. Writers are the abuse guard (automatic) and
// staff actions (manual).
type Service struct {
	repo Repository

	Publisher Publisher
	Audit     *audit.Service
	Metrics   *metrics.Metrics

	// AutoDuration is how long automatic silences last; 0 keeps them until
	// staff clears them.
	AutoDuration time.Duration

	Now   func() time.Time
	NewID func() string
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, Now: time.Now, NewID: uuid.NewString}
}

// Active returns the table's silence if one suppresses calls right now.
// An open but expired silence is closed on the way out.
func (s *Service) Active(ctx context.Context, tableID string) (Silence, bool, error) {
	cur, ok, err := s.repo.Open(ctx, tableID)
	if err != nil || !ok {
		return Silence{}, false, err
	}
	if !cur.Expired(s.Now()) {
		return cur, true, nil
	}

	closed, swapped, err := s.repo.Close(ctx, cur.ID, *cur.ExpiresAt, "")
	if err != nil {
		logger.From(ctx).Warn("close expired silence failed", "silence_id", cur.ID, "err", err)
		return Silence{}, false, nil
	}
	if swapped {
		s.afterUnsilence(ctx, closed, "", "", "expired")
	}
	return Silence{}, false, nil
}

// IsSilenced satisfies calls.SilenceChecker.
func (s *Service) IsSilenced(ctx context.Context, tableID string) (bool, error) {
	_, ok, err := s.Active(ctx, tableID)
	return ok, err
}

// AutoSilence opens an automatic silence recording callCount. When the table
// already has an active silence it is returned with created == false.
func (s *Service) AutoSilence(ctx context.Context, t tables.Table, callCount int) (Silence, bool, error) {
	if cur, ok, err := s.Active(ctx, t.ID); err != nil || ok {
		return cur, false, err
	}

	now := s.Now().UTC()
	row := Silence{
		ID:         s.NewID(),
		TableID:    t.ID,
		BusinessID: t.BusinessID,
		Reason:     ReasonAutomatic,
		SilencedAt: now,
		CallCount:  callCount,
	}
	if s.AutoDuration > 0 {
		exp := now.Add(s.AutoDuration)
		row.ExpiresAt = &exp
	}

	got, created, err := s.repo.InsertIfNoneActive(ctx, row)
	if err != nil {
		return Silence{}, false, err
	}
	if created {
		s.afterSilence(ctx, got, "")
	}
	return got, created, nil
}

// Silence opens a manual silence. Silencing an already silenced table is a
// no-op that returns the existing silence.
func (s *Service) Silence(ctx context.Context, t tables.Table, req ManualRequest) (Silence, bool, error) {
	if req.BusinessID != "" && req.BusinessID != t.BusinessID {
		return Silence{}, false, ErrWrongBusiness
	}
	if cur, ok, err := s.Active(ctx, t.ID); err != nil || ok {
		return cur, false, err
	}

	row := Silence{
		ID:         s.NewID(),
		TableID:    t.ID,
		BusinessID: t.BusinessID,
		Reason:     ReasonManual,
		StaffID:    req.StaffID,
		SilencedAt: s.Now().UTC(),
		Notes:      strings.TrimSpace(req.Notes),
	}
	got, created, err := s.repo.InsertIfNoneActive(ctx, row)
	if err != nil {
		return Silence{}, false, err
	}
	if created {
		s.afterSilence(ctx, got, req.Role)
	}
	return got, created, nil
}

// Unsilence closes the table's active silence, manual or automatic.
func (s *Service) Unsilence(ctx context.Context, t tables.Table, req ManualRequest) (Silence, error) {
	if req.BusinessID != "" && req.BusinessID != t.BusinessID {
		return Silence{}, ErrWrongBusiness
	}
	cur, ok, err := s.Active(ctx, t.ID)
	if err != nil {
		return Silence{}, err
	}
	if !ok {
		return Silence{}, ErrNotSilenced
	}

	closed, swapped, err := s.repo.Close(ctx, cur.ID, s.Now().UTC(), req.StaffID)
	if err != nil {
		return Silence{}, err
	}
	if !swapped {
		return Silence{}, ErrNotSilenced
	}
	s.afterUnsilence(ctx, closed, req.StaffID, req.Role, "manual")
	return closed, nil
}

// ExpireDue closes every automatic silence whose expiry has passed and
// returns how many were closed.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	total := 0
	for {
		closed, err := s.repo.CloseExpired(ctx, s.Now().UTC(), expireBatch)
		if err != nil {
			return total, err
		}
		for _, c := range closed {
			s.afterUnsilence(ctx, c, "", "", "expired")
		}
		total += len(closed)
		if len(closed) < expireBatch {
			return total, nil
		}
	}
}

// RunExpiry calls ExpireDue every interval until ctx is cancelled.
func (s *Service) RunExpiry(ctx context.Context, every time.Duration) {
	log := logger.From(ctx).With("component", "silence_expiry")
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.ExpireDue(ctx)
			if err != nil {
				log.Error("expire silences", "err", err)
				continue
			}
			if n > 0 {
				log.Info("silences expired", "count", n)
			}
		}
	}
}

func (s *Service) afterSilence(ctx context.Context, row Silence, role string) {
	s.Metrics.Silenced(string(row.Reason))
	logger.From(ctx).Info("table silenced",
		"table_id", row.TableID, "silence_id", row.ID, "reason", row.Reason, "call_count", row.CallCount)

	if s.Audit != nil {
		if err := s.Audit.LogSilence(ctx, row.BusinessID, row.TableID, row.ID, row.StaffID, role, string(row.Reason), row.CallCount); err != nil {
			logger.From(ctx).Warn("audit silence failed", "silence_id", row.ID, "err", err)
		}
	}
	if s.Publisher != nil {
		s.Publisher.SilenceChanged(ctx, row)
	}
}

func (s *Service) afterUnsilence(ctx context.Context, row Silence, staffID, role, trigger string) {
	s.Metrics.Unsilenced(trigger)
	logger.From(ctx).Info("table unsilenced", "table_id", row.TableID, "silence_id", row.ID, "trigger", trigger)

	if s.Audit != nil {
		if err := s.Audit.LogUnsilence(ctx, row.BusinessID, row.TableID, row.ID, staffID, role); err != nil {
			logger.From(ctx).Warn("audit unsilence failed", "silence_id", row.ID, "err", err)
		}
	}
	if s.Publisher != nil {
		s.Publisher.SilenceChanged(ctx, row)
	}
}
