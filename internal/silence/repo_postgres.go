package silence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tableservice-platform/pkg/utils"
)

// PostgresRepo stores silences in table_silences. The partial unique index
// table_silences_one_open (table_id) WHERE unsilenced_at IS NULL enforces the
// one-open-row rule; inserts rely on it instead of locking.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const silenceColumns = `id, table_id, business_id, reason, COALESCE(staff_id::text, ''), silenced_at,
	unsilenced_at, COALESCE(unsilenced_by::text, ''), expires_at, call_count, COALESCE(notes, '')`

const insertSilenceSQL = `
INSERT INTO table_silences
	(id, table_id, business_id, reason, staff_id, silenced_at, expires_at, call_count, notes)
VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, NULLIF($9, ''))
ON CONFLICT (table_id) WHERE unsilenced_at IS NULL DO NOTHING`

func (r *PostgresRepo) InsertIfNoneActive(ctx context.Context, s Silence) (Silence, bool, error) {
	res, err := r.db.ExecContext(ctx, insertSilenceSQL,
		s.ID, s.TableID, s.BusinessID, string(s.Reason), s.StaffID, s.SilencedAt.UTC(),
		utils.NullTime(s.ExpiresAt), s.CallCount, s.Notes,
	)
	if err != nil {
		return Silence{}, false, fmt.Errorf("insert silence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Silence{}, false, fmt.Errorf("insert silence: %w", err)
	}
	if n == 1 {
		return s, true, nil
	}

	cur, ok, err := r.Open(ctx, s.TableID)
	if err != nil {
		return Silence{}, false, err
	}
	if !ok {
		// the conflicting row was closed in between; the caller may retry
		return Silence{}, false, ErrConflict
	}
	return cur, false, nil
}

func (r *PostgresRepo) Open(ctx context.Context, tableID string) (Silence, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+silenceColumns+` FROM table_silences WHERE table_id = $1 AND unsilenced_at IS NULL`, tableID)
	s, err := scanSilence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Silence{}, false, nil
	}
	if err != nil {
		return Silence{}, false, fmt.Errorf("open silence: %w", err)
	}
	return s, true, nil
}

func (r *PostgresRepo) Close(ctx context.Context, silenceID string, at time.Time, by string) (Silence, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE table_silences SET unsilenced_at = $2, unsilenced_by = NULLIF($3, '')::uuid
		WHERE id = $1 AND unsilenced_at IS NULL
		RETURNING `+silenceColumns, silenceID, at.UTC(), by)
	s, err := scanSilence(row)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM table_silences WHERE id = $1)`, silenceID).Scan(&exists); err != nil {
			return Silence{}, false, fmt.Errorf("close silence: %w", err)
		}
		if !exists {
			return Silence{}, false, ErrNotFound
		}
		return Silence{}, false, nil
	}
	if err != nil {
		return Silence{}, false, fmt.Errorf("close silence: %w", err)
	}
	return s, true, nil
}

// CloseExpired locks due rows with SKIP LOCKED so concurrent sweepers on
// several instances split the work instead of blocking each other.
func (r *PostgresRepo) CloseExpired(ctx context.Context, now time.Time, limit int) ([]Silence, error) {
	var out []Silence
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, expires_at FROM table_silences
			WHERE unsilenced_at IS NULL AND expires_at IS NOT NULL AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED`, now.UTC(), limit)
		if err != nil {
			return err
		}
		type due struct {
			id string
			at time.Time
		}
		var batch []due
		for rows.Next() {
			var d due
			if err := rows.Scan(&d.id, &d.at); err != nil {
				_ = rows.Close()
				return err
			}
			batch = append(batch, d)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, d := range batch {
			row := tx.QueryRowContext(ctx, `
				UPDATE table_silences SET unsilenced_at = $2
				WHERE id = $1 AND unsilenced_at IS NULL
				RETURNING `+silenceColumns, d.id, d.at)
			s, err := scanSilence(row)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("close expired silences: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSilence(s rowScanner) (Silence, error) {
	var (
		out                 Silence
		reason              string
		unsilenced, expires sql.NullTime
	)
	if err := s.Scan(&out.ID, &out.TableID, &out.BusinessID, &reason, &out.StaffID, &out.SilencedAt,
		&unsilenced, &out.UnsilencedBy, &expires, &out.CallCount, &out.Notes); err != nil {
		return Silence{}, err
	}
	out.Reason = Reason(reason)
	out.SilencedAt = out.SilencedAt.UTC()
	out.UnsilencedAt = utils.TimePtr(unsilenced)
	out.ExpiresAt = utils.TimePtr(expires)
	return out, nil
}
