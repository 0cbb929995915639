package realtime

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// sequencer delivers events of the same call in version order. Versions are
// registered with expect on the caller's goroutine, so the first version of a
// call is always known before a later one can be submitted. An event that
// arrives ahead of a missing version is held; if the gap is not filled within
// hold, delivery resumes from the oldest held version.
type sequencer struct {
	mu     sync.Mutex
	states *cache.Cache
	hold   time.Duration

	// counts events accepted by submit until they are delivered or discarded
	held sync.WaitGroup
}

type heldEvent struct {
	deliver  func()
	terminal bool
}

type callState struct {
	mu      sync.Mutex
	next    int
	pending map[int]heldEvent
	timer   *time.Timer
	done    bool
}

func newSequencer(ttl, hold time.Duration) *sequencer {
	return &sequencer{
		states: cache.New(ttl, ttl/2),
		hold:   hold,
	}
}

func (s *sequencer) state(callID string, version int) *callState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.states.Get(callID); ok {
		return v.(*callState)
	}
	st := &callState{next: version, pending: make(map[int]heldEvent)}
	s.states.SetDefault(callID, st)
	return st
}

// expect makes version the floor for callID if the call is not yet tracked.
func (s *sequencer) expect(callID string, version int) {
	s.state(callID, version)
}

// submit queues deliver for (callID, version). Stale versions are dropped and
// report false.
func (s *sequencer) submit(callID string, version int, terminal bool, deliver func()) bool {
	st := s.state(callID, version)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.done || version < st.next {
		return false
	}
	if _, dup := st.pending[version]; dup {
		return false
	}
	s.held.Add(1)
	st.pending[version] = heldEvent{deliver: deliver, terminal: terminal}
	s.drainLocked(st)

	if len(st.pending) > 0 && st.timer == nil {
		st.timer = time.AfterFunc(s.hold, func() { s.skipGap(st) })
	}
	return true
}

func (s *sequencer) drainLocked(st *callState) {
	for {
		ev, ok := st.pending[st.next]
		if !ok {
			return
		}
		delete(st.pending, st.next)
		st.next++
		ev.deliver()
		s.held.Done()
		if ev.terminal {
			s.finishLocked(st)
			return
		}
	}
}

// finishLocked closes the call. The state stays cached as a tombstone until
// it expires so late duplicates are still recognised as stale.
func (s *sequencer) finishLocked(st *callState) {
	st.done = true
	for range st.pending {
		s.held.Done()
	}
	st.pending = map[int]heldEvent{}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}

func (s *sequencer) skipGap(st *callState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.timer = nil
	if st.done || len(st.pending) == 0 {
		return
	}
	lowest := -1
	for v := range st.pending {
		if lowest == -1 || v < lowest {
			lowest = v
		}
	}
	st.next = lowest
	s.drainLocked(st)
	if !st.done && len(st.pending) > 0 {
		st.timer = time.AfterFunc(s.hold, func() { s.skipGap(st) })
	}
}

// wait blocks until every accepted event has been delivered or discarded,
// including events still held for a missing version.
func (s *sequencer) wait() {
	s.held.Wait()
}

// open reports whether callID has ordering state that has not reached a
// terminal event.
func (s *sequencer) open(callID string) bool {
	v, ok := s.states.Get(callID)
	if !ok {
		return false
	}
	st := v.(*callState)
	st.mu.Lock()
	defer st.mu.Unlock()
	return !st.done
}
