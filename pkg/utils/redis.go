package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls redis client behavior.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.MinIdleConns < 0 {
		out.MinIdleConns = 0
	}
	if out.PoolTimeout <= 0 {
		out.PoolTimeout = 4 * time.Second
	}
	if out.ConnMaxIdleTime <= 0 {
		out.ConnMaxIdleTime = 5 * time.Minute
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 30 * time.Minute
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		PoolTimeout:     cfg.PoolTimeout,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

var slidingWindowScript = redis.NewScript(`
-- KEYS[1] = sorted set holding one member per hit
-- ARGV[1] = now (unix ms)
-- ARGV[2] = window (ms)
-- ARGV[3] = member (unique per hit)
--
-- Returns the number of hits inside (now - window, now], including this one.
local cutoff = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cutoff)
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return redis.call('ZCARD', KEYS[1])
`)

// SlidingWindowHit records one hit under key and returns how many hits fall
// inside the trailing window, this one included. The whole update is a
// single Lua call so concurrent callers always see distinct counts.
func SlidingWindowHit(ctx context.Context, rdb redis.Scripter, key, member string, now time.Time, window time.Duration) (int64, error) {
	if rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if key == "" || member == "" {
		return 0, fmt.Errorf("key and member are required")
	}
	if window <= 0 {
		return 0, fmt.Errorf("window must be > 0")
	}

	return slidingWindowScript.Run(ctx, rdb, []string{key}, now.UnixMilli(), window.Milliseconds(), member).Int64()
}

var versionedSetScript = redis.NewScript(`
-- KEYS[1] = document key
-- KEYS[2] = index hash, member -> stored version
-- ARGV[1] = member
-- ARGV[2] = version
-- ARGV[3] = document
-- ARGV[4] = ttl (ms), 0 keeps both keys
--
-- Returns 1 when the document was written, 0 when the stored version is not older.
local stored = tonumber(redis.call('HGET', KEYS[2], ARGV[1]))
if stored and stored >= tonumber(ARGV[2]) then
  return 0
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[3], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[3])
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[2], ttl)
end
return 1
`)

// VersionedSet writes doc at key only if the version recorded for member in
// the index hash is lower than version. It reports whether the write happened.
func VersionedSet(ctx context.Context, rdb redis.Scripter, key, index, member string, version int64, doc []byte, ttl time.Duration) (bool, error) {
	if rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if key == "" || index == "" || member == "" {
		return false, fmt.Errorf("key, index and member are required")
	}
	if ttl < 0 {
		return false, fmt.Errorf("ttl must be >= 0")
	}

	n, err := versionedSetScript.Run(ctx, rdb, []string{key, index}, member, version, doc, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
