package tables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tableservice-platform/pkg/utils"
)

type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory { return &PostgresDirectory{db: db} }

const getTableSQL = `
SELECT t.id, t.business_id, COALESCE(t.label, ''), t.notifications_enabled,
       COALESCE(a.staff_id::text, ''), a.assigned_at
FROM restaurant_tables t
LEFT JOIN table_assignments a ON a.table_id = t.id AND a.released_at IS NULL
WHERE t.id = $1`

func (d *PostgresDirectory) Get(ctx context.Context, tableID string) (Table, error) {
	var (
		t          Table
		assignedAt sql.NullTime
	)
	if !utils.IsUUID(tableID) {
		return Table{}, ErrNotFound
	}
	err := d.db.QueryRowContext(ctx, getTableSQL, tableID).Scan(
		&t.ID, &t.BusinessID, &t.Label, &t.NotificationsEnabled, &t.AssignedStaffID, &assignedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Table{}, ErrNotFound
	}
	if err != nil {
		return Table{}, fmt.Errorf("get table: %w", err)
	}
	t.AssignedAt = utils.TimePtr(assignedAt)
	return t, nil
}
