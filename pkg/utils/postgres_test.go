package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// txRecorder is a minimal database/sql driver that only records how
// transactions end.
type txRecorder struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (r *txRecorder) Open(string) (driver.Conn, error) { return &recConn{r: r}, nil }

type recConn struct{ r *txRecorder }

func (c *recConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *recConn) Close() error                        { return nil }
func (c *recConn) Begin() (driver.Tx, error)           { return &recTx{r: c.r}, nil }

type recTx struct{ r *txRecorder }

func (t *recTx) Commit() error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.commits++
	return nil
}

func (t *recTx) Rollback() error {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	t.r.rollbacks++
	return nil
}

var (
	registerOnce sync.Once
	recorder     = &txRecorder{}
)

func openRecorder(t *testing.T) *sql.DB {
	t.Helper()
	registerOnce.Do(func() { sql.Register("txrecorder", recorder) })
	db, err := sql.Open("txrecorder", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func counts() (int, int) {
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	return recorder.commits, recorder.rollbacks
}

func TestWithTx_CommitAndRollback(t *testing.T) {
	db := openRecorder(t)
	ctx := context.Background()

	c0, r0 := counts()
	require.NoError(t, WithTx(ctx, db, nil, func(context.Context, *sql.Tx) error { return nil }))
	c1, r1 := counts()
	assert.Equal(t, c0+1, c1)
	assert.Equal(t, r0, r1)

	boom := errors.New("boom")
	err := WithTx(ctx, db, nil, func(context.Context, *sql.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	c2, r2 := counts()
	assert.Equal(t, c1, c2)
	assert.Equal(t, r1+1, r2)
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := openRecorder(t)

	_, r0 := counts()
	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, nil, func(context.Context, *sql.Tx) error { panic("kaboom") })
	})
	_, r1 := counts()
	assert.Equal(t, r0+1, r1)
}

func TestNullTimeRoundTrip(t *testing.T) {
	assert.False(t, NullTime(nil).Valid)
	assert.Nil(t, TimePtr(sql.NullTime{}))

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	got := TimePtr(NullTime(&now))
	require.NotNil(t, got)
	assert.True(t, now.Equal(*got))
}

func TestPostgresPoolDefaults(t *testing.T) {
	cfg := PostgresPoolConfig{MaxOpenConns: 10}.withDefaults()
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Second, cfg.PingTimeout)
}
