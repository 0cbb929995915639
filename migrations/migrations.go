// Package migrations holds the idempotent database schema applied at startup.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"tableservice-platform/pkg/utils"
)

//go:embed *.sql
var files embed.FS

// Files lists the schema files in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply runs every schema file in one transaction. Statements use IF NOT
// EXISTS, so applying twice is a no-op.
func Apply(ctx context.Context, db *sql.DB) error {
	names, err := Files()
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
		for _, name := range names {
			body, err := files.ReadFile(name)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
		}
		return nil
	})
}
