package notify

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

type MemoryEndpoints struct {
	mu        sync.RWMutex
	endpoints map[string][]Endpoint
}

func NewMemoryEndpoints(eps ...Endpoint) *MemoryEndpoints {
	m := &MemoryEndpoints{endpoints: make(map[string][]Endpoint)}
	for _, ep := range eps {
		m.Add(ep)
	}
	return m
}

func (m *MemoryEndpoints) Add(ep Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[ep.StaffID] = append(m.endpoints[ep.StaffID], ep)
}

func (m *MemoryEndpoints) Endpoints(_ context.Context, staffID string) ([]Endpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Endpoint(nil), m.endpoints[staffID]...), nil
}

// PostgresEndpoints reads staff_push_endpoints.
type PostgresEndpoints struct {
	db *sql.DB
}

func NewPostgresEndpoints(db *sql.DB) *PostgresEndpoints { return &PostgresEndpoints{db: db} }

func (p *PostgresEndpoints) Endpoints(ctx context.Context, staffID string) ([]Endpoint, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, staff_id, target, COALESCE(label, '')
		FROM staff_push_endpoints
		WHERE staff_id = $1 AND disabled_at IS NULL
		ORDER BY created_at`, staffID)
	if err != nil {
		return nil, fmt.Errorf("list push endpoints: %w", err)
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		var ep Endpoint
		if err := rows.Scan(&ep.ID, &ep.StaffID, &ep.Target, &ep.Label); err != nil {
			return nil, fmt.Errorf("scan push endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
