package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: make(map[string]Call)}
}

func (r *MemoryRepo) Insert(_ context.Context, c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[c.ID]; exists {
		return ErrDuplicateCall
	}
	r.calls[c.ID] = c.Clone()
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c.Clone(), nil
}

func (r *MemoryRepo) CompareAndSwap(_ context.Context, prev, next Call) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.calls[prev.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Status != prev.Status || cur.Version != prev.Version {
		return false, nil
	}
	r.calls[prev.ID] = next.Clone()
	return true, nil
}

func (r *MemoryRepo) CountSince(_ context.Context, tableID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.TableID == tableID && !c.CalledAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) ActiveForTable(_ context.Context, tableID string) (Call, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		latest Call
		found  bool
	)
	for _, c := range r.calls {
		if c.TableID != tableID || c.Status.Terminal() {
			continue
		}
		if !found || c.CalledAt.After(latest.CalledAt) {
			latest, found = c, true
		}
	}
	return latest.Clone(), found, nil
}

func (r *MemoryRepo) ListByBusiness(_ context.Context, businessID string, from, to time.Time) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if c.BusinessID != businessID {
			continue
		}
		if c.CalledAt.Before(from) || !c.CalledAt.Before(to) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CalledAt.Before(out[j].CalledAt) })
	return out, nil
}
