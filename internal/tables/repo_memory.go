package tables

import (
	"context"
	"sync"
	"time"
)

type MemoryDirectory struct {
	mu     sync.RWMutex
	tables map[string]Table
}

func NewMemoryDirectory(ts ...Table) *MemoryDirectory {
	d := &MemoryDirectory{tables: make(map[string]Table, len(ts))}
	for _, t := range ts {
		d.tables[t.ID] = t
	}
	return d
}

func (d *MemoryDirectory) Get(_ context.Context, tableID string) (Table, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tables[tableID]
	if !ok {
		return Table{}, ErrNotFound
	}
	return t, nil
}

// Put inserts or replaces a table.
func (d *MemoryDirectory) Put(t Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[t.ID] = t
}

// Assign changes the staff member serving a table. An empty staffID clears it.
func (d *MemoryDirectory) Assign(tableID, staffID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[tableID]
	if !ok {
		return ErrNotFound
	}
	t.AssignedStaffID = staffID
	if staffID == "" {
		t.AssignedAt = nil
	} else {
		at = at.UTC()
		t.AssignedAt = &at
	}
	d.tables[tableID] = t
	return nil
}
