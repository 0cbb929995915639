package abuse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"tableservice-platform/pkg/utils"

	"github.com/patrickmn/go-cache"
)

// OriginBlockSource looks up the block entry for an origin within a business.
type OriginBlockSource interface {
	Lookup(ctx context.Context, businessID, originID string) (OriginBlock, bool, error)
}

type MemoryOriginBlocks struct {
	mu     sync.RWMutex
	blocks map[string]OriginBlock
}

func NewMemoryOriginBlocks(bs ...OriginBlock) *MemoryOriginBlocks {
	m := &MemoryOriginBlocks{blocks: make(map[string]OriginBlock, len(bs))}
	for _, b := range bs {
		m.Put(b)
	}
	return m
}

func (m *MemoryOriginBlocks) Put(b OriginBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.OriginID = NormalizeOrigin(b.OriginID)
	m.blocks[blockKey(b.BusinessID, b.OriginID)] = b
}

func (m *MemoryOriginBlocks) Lookup(_ context.Context, businessID, originID string) (OriginBlock, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[blockKey(businessID, originID)]
	return b, ok, nil
}

// PostgresOriginBlocks reads origin_blocks.
type PostgresOriginBlocks struct {
	db *sql.DB
}

func NewPostgresOriginBlocks(db *sql.DB) *PostgresOriginBlocks {
	return &PostgresOriginBlocks{db: db}
}

func (p *PostgresOriginBlocks) Lookup(ctx context.Context, businessID, originID string) (OriginBlock, bool, error) {
	var (
		b       OriginBlock
		expires sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT origin_id, business_id, active, expires_at, COALESCE(reason, '')
		FROM origin_blocks
		WHERE business_id = $1 AND origin_id = $2`, businessID, originID,
	).Scan(&b.OriginID, &b.BusinessID, &b.Active, &expires, &b.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return OriginBlock{}, false, nil
	}
	if err != nil {
		return OriginBlock{}, false, fmt.Errorf("lookup origin block: %w", err)
	}
	b.ExpiresAt = utils.TimePtr(expires)
	return b, true, nil
}

// CachedOriginBlocks memoises lookups, misses included, for ttl. A block
// added upstream takes effect within one ttl.
type CachedOriginBlocks struct {
	next  OriginBlockSource
	cache *cache.Cache
}

type cachedLookup struct {
	block OriginBlock
	found bool
}

func NewCachedOriginBlocks(next OriginBlockSource, ttl time.Duration) *CachedOriginBlocks {
	return &CachedOriginBlocks{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *CachedOriginBlocks) Lookup(ctx context.Context, businessID, originID string) (OriginBlock, bool, error) {
	key := blockKey(businessID, originID)
	if v, ok := c.cache.Get(key); ok {
		hit := v.(cachedLookup)
		return hit.block, hit.found, nil
	}
	b, found, err := c.next.Lookup(ctx, businessID, originID)
	if err != nil {
		return OriginBlock{}, false, err
	}
	c.cache.SetDefault(key, cachedLookup{block: b, found: found})
	return b, found, nil
}

func blockKey(businessID, originID string) string {
	return businessID + "|" + originID
}
