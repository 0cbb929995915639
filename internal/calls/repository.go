package calls

import (
	"context"
	"time"
)

// Repository persists calls. The lifecycle manager is its only writer.
type Repository interface {
	Insert(ctx context.Context, c Call) error
	Get(ctx context.Context, callID string) (Call, error)

	// CompareAndSwap replaces prev with next only if the stored row still has
	// prev's status and version. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, prev, next Call) (bool, error)

	// CountSince counts calls for a table with called_at >= since.
	CountSince(ctx context.Context, tableID string, since time.Time) (int, error)

	// ActiveForTable returns the most recent non-terminal call for a table.
	ActiveForTable(ctx context.Context, tableID string) (Call, bool, error)

	// ListByBusiness returns calls with called_at in [from, to).
	ListByBusiness(ctx context.Context, businessID string, from, to time.Time) ([]Call, error)
}
