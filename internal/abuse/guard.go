package abuse

import (
	"context"
	"time"

	"tableservice-platform/internal/audit"
	"tableservice-platform/internal/silence"
	"tableservice-platform/internal/tables"
	"tableservice-platform/pkg/logger"
)

// Silencer opens automatic silences.
type Silencer interface {
	AutoSilence(ctx context.Context, t tables.Table, callCount int) (silence.Silence, bool, error)
}

// Guard implements calls.Guard.
//
// A blocked origin is never told it was blocked: the caller turns the
// verdict into an ordinary success and only the audit trail records it.
type Guard struct {
	Blocks   OriginBlockSource
	Counter  RateCounter
	Silencer Silencer
	Policy   Policy
	Audit    *audit.Service
	Now      func() time.Time
}

func NewGuard(blocks OriginBlockSource, counter RateCounter, silencer Silencer, policy Policy) *Guard {
	return &Guard{Blocks: blocks, Counter: counter, Silencer: silencer, Policy: policy, Now: time.Now}
}

// OriginBlocked reports whether originID is blocked for the table's business.
func (g *Guard) OriginBlocked(ctx context.Context, t tables.Table, originID string) (bool, error) {
	if g.Blocks == nil || originID == "" {
		return false, nil
	}
	originID = NormalizeOrigin(originID)

	b, found, err := g.Blocks.Lookup(ctx, t.BusinessID, originID)
	if err != nil {
		return false, err
	}
	if !found || !b.BlocksAt(g.Now()) {
		return false, nil
	}

	logger.From(ctx).Info("call attempt from blocked origin", "table_id", t.ID, "business_id", t.BusinessID)
	if g.Audit != nil {
		if err := g.Audit.LogOriginBlocked(ctx, t.BusinessID, t.ID, originID); err != nil {
			logger.From(ctx).Warn("audit origin block failed", "err", err)
		}
	}
	return true, nil
}

// RecordAttempt counts the attempt and, once the table exceeds the policy,
// silences it. The attempt that trips the rule still goes through.
func (g *Guard) RecordAttempt(ctx context.Context, t tables.Table) error {
	if g.Counter == nil || g.Policy.Threshold <= 0 {
		return nil
	}

	count, err := g.Counter.Hit(ctx, t.ID, g.Now())
	if err != nil {
		return err
	}
	if count <= g.Policy.Threshold {
		return nil
	}

	if g.Silencer == nil {
		return nil
	}
	s, created, err := g.Silencer.AutoSilence(ctx, t, count)
	if err != nil {
		return err
	}
	if created {
		logger.From(ctx).Warn("table auto-silenced",
			"table_id", t.ID, "silence_id", s.ID, "call_count", count,
			"threshold", g.Policy.Threshold, "window", g.Policy.Window.String())
	}
	return nil
}
