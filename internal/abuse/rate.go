package abuse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tableservice-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateCounter records one call attempt for a table and returns the number of
// attempts inside the trailing window, this one included.
type RateCounter interface {
	Hit(ctx context.Context, tableID string, now time.Time) (int, error)
}

// CallHistory is the slice of the call store the history counter needs.
type CallHistory interface {
	CountSince(ctx context.Context, tableID string, since time.Time) (int, error)
}

// HistoryCounter derives the count from stored calls. The attempt being
// recorded is not stored yet, so it adds one. Attempts seen by this process
// are also kept in memory: concurrent creates all count the store before any
// of them inserts, and the local log still sees the whole burst. The larger
// of the two counts wins.
type HistoryCounter struct {
	History CallHistory
	Window  time.Duration

	mu     sync.Mutex
	recent map[string][]time.Time
}

func NewHistoryCounter(history CallHistory, window time.Duration) *HistoryCounter {
	return &HistoryCounter{History: history, Window: window, recent: make(map[string][]time.Time)}
}

func (h *HistoryCounter) Hit(ctx context.Context, tableID string, now time.Time) (int, error) {
	local := h.hitLocal(tableID, now)
	n, err := h.History.CountSince(ctx, tableID, now.Add(-h.Window))
	if err != nil {
		return 0, err
	}
	return max(n+1, local), nil
}

func (h *HistoryCounter) hitLocal(tableID string, now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-h.Window)
	kept := h.recent[tableID][:0]
	for _, at := range h.recent[tableID] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	kept = append(kept, now)
	h.recent[tableID] = kept
	return len(kept)
}

// RedisCounter keeps a sorted set of attempts per table and trims it on every
// hit, so several API instances share one window.
type RedisCounter struct {
	rdb    redis.Scripter
	window time.Duration
	prefix string
}

func NewRedisCounter(rdb redis.Scripter, window time.Duration) *RedisCounter {
	return &RedisCounter{rdb: rdb, window: window, prefix: "callrate:"}
}

func (r *RedisCounter) Hit(ctx context.Context, tableID string, now time.Time) (int, error) {
	n, err := utils.SlidingWindowHit(ctx, r.rdb, r.prefix+tableID, uuid.NewString(), now, r.window)
	if err != nil {
		return 0, fmt.Errorf("call rate hit: %w", err)
	}
	return int(n), nil
}
