package tables

import (
	"context"
	"errors"
	"time"
)

// Table is a physical table as seen by the call engine. Table CRUD lives
// elsewhere; this package only reads.
type Table struct {
	ID                   string     `json:"id" db:"id"`
	BusinessID           string     `json:"business_id" db:"business_id"`
	Label                string     `json:"label,omitempty" db:"label"`
	NotificationsEnabled bool       `json:"notifications_enabled" db:"notifications_enabled"`
	AssignedStaffID      string     `json:"assigned_staff_id,omitempty" db:"assigned_staff_id"`
	AssignedAt           *time.Time `json:"assigned_at,omitempty" db:"assigned_at"`
}

// HasAssignee reports whether a staff member currently serves the table.
func (t Table) HasAssignee() bool { return t.AssignedStaffID != "" }

var ErrNotFound = errors.New("tables: not found")

// Directory resolves a table and its current staff assignment.
type Directory interface {
	Get(ctx context.Context, tableID string) (Table, error)
}
