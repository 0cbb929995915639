package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tableservice-platform/internal/calls"
	"tableservice-platform/internal/metrics"
	"tableservice-platform/internal/notify"
	"tableservice-platform/internal/silence"
	"tableservice-platform/internal/telemetry"
	"tableservice-platform/pkg/logger"
)

const (
	defaultDeliveryTimeout = 5 * time.Second
	orderStateTTL          = time.Hour
	orderHold              = 2 * time.Second
)

// Dispatcher turns committed state changes into realtime events. All delivery
// happens off the caller's goroutine; failures are logged and counted and
// never reach the request that caused the change. Events of one call (and of
// one silence) are delivered in version order.
type Dispatcher struct {
	Mirror  Mirror
	Stream  Stream
	Push    notify.Sender
	Metrics *metrics.Metrics

	// Timeout bounds each background delivery step.
	Timeout time.Duration
	Now     func() time.Time

	broadcasters []Broadcaster
	seq          *sequencer
	wg           sync.WaitGroup
}

func NewDispatcher(broadcasters ...Broadcaster) *Dispatcher {
	return &Dispatcher{
		Timeout:      defaultDeliveryTimeout,
		Now:          time.Now,
		broadcasters: broadcasters,
		seq:          newSequencer(orderStateTTL, orderHold),
	}
}

// CallChanged implements calls.Dispatcher.
func (d *Dispatcher) CallChanged(ctx context.Context, c calls.Call) {
	ev := CallEvent(c, d.Now())
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.From(ctx).Error("encode call event", "call_id", c.ID, "err", err)
		return
	}

	// registered before returning so a later version cannot overtake this one
	d.seq.expect(c.ID, c.Version)

	bg := context.WithoutCancel(ctx)
	terminal := c.Status.Terminal()
	d.async(func() {
		ok := d.seq.submit(c.ID, c.Version, terminal, func() {
			d.broadcast(bg, ev, payload)
			d.mirror(bg, ev)
			d.stream(bg, ev, payload)
		})
		if !ok {
			logger.From(bg).Debug("stale call event dropped", "call_id", c.ID, "version", c.Version)
		}
	})

	if c.Status == calls.StatusPending && d.Push != nil {
		d.async(func() { d.push(bg, c) })
	}
}

// SilenceChanged implements silence.Publisher.
func (d *Dispatcher) SilenceChanged(ctx context.Context, s silence.Silence) {
	ev := SilenceEvent(s, d.Now())
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.From(ctx).Error("encode table event", "table_id", s.TableID, "err", err)
		return
	}

	key, version := "silence:"+s.ID, 1
	if !s.Open() {
		version = 2
	}
	d.seq.expect(key, version)

	bg := context.WithoutCancel(ctx)
	d.async(func() {
		d.seq.submit(key, version, version == 2, func() {
			d.broadcast(bg, ev, payload)
			d.stream(bg, ev, payload)
		})
	})
}

// Wait blocks until every delivery started so far has finished, including
// events the sequencer is holding back for a missing version. Callers must
// stop producing events first.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
	d.seq.wait()
}

func (d *Dispatcher) async(fn func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn()
	}()
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.Timeout)
}

func (d *Dispatcher) broadcast(ctx context.Context, ev Event, payload []byte) {
	for _, ch := range ev.Channels() {
		msg := Message{Channel: ch, Event: ev, Payload: payload}
		for _, b := range d.broadcasters {
			bctx, cancel := d.withTimeout(ctx)
			err := b.Publish(bctx, msg)
			cancel()
			if err != nil {
				d.Metrics.BroadcastFailed(b.Name())
				logger.From(ctx).Warn("broadcast failed",
					"transport", b.Name(), "channel", ch, "event", ev.Type, "err", err)
			}
		}
	}
}

func (d *Dispatcher) mirror(ctx context.Context, ev Event) {
	if d.Mirror == nil || ev.Call == nil {
		return
	}
	doc, err := json.Marshal(ev.Call)
	if err == nil {
		mctx, cancel := d.withTimeout(ctx)
		err = d.Mirror.Write(mctx, ev, doc)
		cancel()
	}
	if err != nil {
		d.Metrics.MirrorFailed()
		logger.From(ctx).Warn("mirror write failed", "call_id", ev.Call.CallID, "err", err)
		telemetry.SoftFailure(ctx, "mirror", err, map[string]string{"call_id": ev.Call.CallID})
	}
}

func (d *Dispatcher) stream(ctx context.Context, ev Event, payload []byte) {
	if d.Stream == nil {
		return
	}
	sctx, cancel := d.withTimeout(ctx)
	err := d.Stream.Emit(sctx, ev, payload)
	cancel()
	if err != nil {
		d.Metrics.StreamFailed()
		logger.From(ctx).Warn("event stream write failed", "event", ev.Type, "key", ev.Key(), "err", err)
		telemetry.SoftFailure(ctx, "stream", err, map[string]string{"event": string(ev.Type)})
	}
}

func (d *Dispatcher) push(ctx context.Context, c calls.Call) {
	body := c.Message
	if body == "" {
		body = "A guest is asking for assistance"
	}
	p := notify.Payload{
		Title:      "Table call",
		Body:       body,
		CallID:     c.ID,
		TableID:    c.TableID,
		BusinessID: c.BusinessID,
		Data:       map[string]string{"type": string(EventCallCreated)},
	}
	if err := d.Push.Send(ctx, c.StaffID, p); err != nil {
		logger.From(ctx).Warn("push failed", "call_id", c.ID, "staff_id", c.StaffID, "err", err)
	}
}
