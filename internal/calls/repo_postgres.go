package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tableservice-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresRepo stores calls in waiter_calls. Status changes are conditional
// UPDATEs on (status, version); no row locks are held across requests.
type PostgresRepo struct {
	db utils.DBTX
}

func NewPostgresRepo(db utils.DBTX) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, table_id, business_id, COALESCE(staff_id::text, ''), status, COALESCE(message, ''),
	metadata, called_at, acknowledged_at, completed_at, cancelled_at, COALESCE(cancel_reason, ''), version`

const insertCallSQL = `
INSERT INTO waiter_calls
	(id, table_id, business_id, staff_id, status, message, metadata, called_at,
	 acknowledged_at, completed_at, cancelled_at, cancel_reason, version)
VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, NULLIF($6, ''), $7::jsonb, $8, $9, $10, $11, NULLIF($12, ''), $13)`

func (r *PostgresRepo) Insert(ctx context.Context, c Call) error {
	meta, err := encodeMetadata(c.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertCallSQL,
		c.ID, c.TableID, c.BusinessID, c.StaffID, string(c.Status), c.Message, meta, c.CalledAt,
		utils.NullTime(c.AcknowledgedAt), utils.NullTime(c.CompletedAt), utils.NullTime(c.CancelledAt),
		c.CancelReason, c.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCall
	}
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (Call, error) {
	if !utils.IsUUID(callID) {
		return Call{}, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM waiter_calls WHERE id = $1`, callID)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, fmt.Errorf("get call: %w", err)
	}
	return c, nil
}

const swapCallSQL = `
UPDATE waiter_calls
SET status = $1, acknowledged_at = $2, completed_at = $3, cancelled_at = $4,
    cancel_reason = NULLIF($5, ''), version = $6
WHERE id = $7 AND status = $8 AND version = $9`

func (r *PostgresRepo) CompareAndSwap(ctx context.Context, prev, next Call) (bool, error) {
	res, err := r.db.ExecContext(ctx, swapCallSQL,
		string(next.Status),
		utils.NullTime(next.AcknowledgedAt), utils.NullTime(next.CompletedAt), utils.NullTime(next.CancelledAt),
		next.CancelReason, next.Version,
		prev.ID, string(prev.Status), prev.Version,
	)
	if err != nil {
		return false, fmt.Errorf("swap call status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("swap call status: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepo) CountSince(ctx context.Context, tableID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM waiter_calls WHERE table_id = $1 AND called_at >= $2`,
		tableID, since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count calls: %w", err)
	}
	return n, nil
}

func (r *PostgresRepo) ActiveForTable(ctx context.Context, tableID string) (Call, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM waiter_calls
		WHERE table_id = $1 AND status IN ('pending', 'acknowledged')
		ORDER BY called_at DESC LIMIT 1`, tableID)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, false, nil
	}
	if err != nil {
		return Call{}, false, fmt.Errorf("active call: %w", err)
	}
	return c, true, nil
}

func (r *PostgresRepo) ListByBusiness(ctx context.Context, businessID string, from, to time.Time) ([]Call, error) {
	if !utils.IsUUID(businessID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+callColumns+` FROM waiter_calls
		WHERE business_id = $1 AND called_at >= $2 AND called_at < $3
		ORDER BY called_at`, businessID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(s rowScanner) (Call, error) {
	var (
		c                   Call
		status              string
		meta                []byte
		ackAt, doneAt, canc sql.NullTime
	)
	if err := s.Scan(&c.ID, &c.TableID, &c.BusinessID, &c.StaffID, &status, &c.Message,
		&meta, &c.CalledAt, &ackAt, &doneAt, &canc, &c.CancelReason, &c.Version); err != nil {
		return Call{}, err
	}
	c.Status = Status(status)
	c.CalledAt = c.CalledAt.UTC()
	c.AcknowledgedAt = utils.TimePtr(ackAt)
	c.CompletedAt = utils.TimePtr(doneAt)
	c.CancelledAt = utils.TimePtr(canc)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return Call{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return c, nil
}

func encodeMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
