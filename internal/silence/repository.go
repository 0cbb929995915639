package silence

import (
	"context"
	"time"
)

type Repository interface {
	// InsertIfNoneActive stores s unless the table already has an open row.
	// It returns the table's open row and whether it is s.
	InsertIfNoneActive(ctx context.Context, s Silence) (Silence, bool, error)

	// Open returns the table's open row, if any.
	Open(ctx context.Context, tableID string) (Silence, bool, error)

	// Close sets unsilenced_at on an open row. It reports false when the row
	// was already closed.
	Close(ctx context.Context, silenceID string, at time.Time, by string) (Silence, bool, error)

	// CloseExpired closes up to limit open rows whose expiry is <= now and
	// returns them.
	CloseExpired(ctx context.Context, now time.Time, limit int) ([]Silence, error)
}
