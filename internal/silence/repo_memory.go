package silence

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Silence
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: make(map[string]Silence)}
}

func (r *MemoryRepo) InsertIfNoneActive(_ context.Context, s Silence) (Silence, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.openLocked(s.TableID); ok {
		return cur, false, nil
	}
	r.rows[s.ID] = s
	return s, true, nil
}

func (r *MemoryRepo) Open(_ context.Context, tableID string) (Silence, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.openLocked(tableID)
	return s, ok, nil
}

func (r *MemoryRepo) Close(_ context.Context, silenceID string, at time.Time, by string) (Silence, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[silenceID]
	if !ok {
		return Silence{}, false, ErrNotFound
	}
	if !s.Open() {
		return s, false, nil
	}
	return r.closeLocked(s, at, by), true, nil
}

func (r *MemoryRepo) CloseExpired(_ context.Context, now time.Time, limit int) ([]Silence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Silence
	for _, s := range r.rows {
		if s.Open() && s.Expired(now) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ExpiresAt.Before(*due[j].ExpiresAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]Silence, 0, len(due))
	for _, s := range due {
		out = append(out, r.closeLocked(s, *s.ExpiresAt, ""))
	}
	return out, nil
}

// All returns every row, open or closed, for assertions in tests.
func (r *MemoryRepo) All() []Silence {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Silence, 0, len(r.rows))
	for _, s := range r.rows {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SilencedAt.Before(out[j].SilencedAt) })
	return out
}

func (r *MemoryRepo) openLocked(tableID string) (Silence, bool) {
	for _, s := range r.rows {
		if s.TableID == tableID && s.Open() {
			return s, true
		}
	}
	return Silence{}, false
}

func (r *MemoryRepo) closeLocked(s Silence, at time.Time, by string) Silence {
	at = at.UTC()
	s.UnsilencedAt = &at
	s.UnsilencedBy = by
	r.rows[s.ID] = s
	return s
}
