package realtime

import (
	"context"
	"time"

	"tableservice-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Mirror keeps a document copy of every call at MirrorPath for clients that
// read state instead of subscribing.
type Mirror interface {
	Write(ctx context.Context, ev Event, doc []byte) error
}

type NopMirror struct{}

func (NopMirror) Write(context.Context, Event, []byte) error { return nil }

// RedisMirror stores each call document under its path and records the
// mirrored version per call in a hash at "businesses/<b>/tables/<t>/calls".
// A write carrying an older version than the stored one is dropped, so
// instances racing on the same call converge on the latest state.
type RedisMirror struct {
	rdb redis.Scripter
	ttl time.Duration
}

func NewRedisMirror(rdb redis.Scripter, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func (m *RedisMirror) Write(ctx context.Context, ev Event, doc []byte) error {
	if ev.Call == nil {
		return nil
	}
	c := ev.Call
	_, err := utils.VersionedSet(ctx, m.rdb,
		MirrorPath(c.BusinessID, c.TableID, c.CallID),
		MirrorIndex(c.BusinessID, c.TableID),
		c.CallID, int64(c.Version), doc, m.ttl)
	return err
}
