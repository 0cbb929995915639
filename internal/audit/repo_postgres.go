package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo writes to audit_events, which only ever receives INSERTs.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const insertAuditEventSQL = `
INSERT INTO audit_events
	(id, business_id, type, actor_staff_id, actor_role, ip_address, table_id, call_id, silence_id, message, metadata, created_at)
VALUES
	($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, NULLIF($11, '')::jsonb, $12)`

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, insertAuditEventSQL,
		e.ID, e.BusinessID, string(e.Type), e.ActorStaffID, e.ActorRole, e.IPAddress,
		e.TableID, e.CallID, e.SilenceID, e.Message, e.Metadata, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}
