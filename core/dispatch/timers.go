package dispatch

import (
	"sync"
	"time"
)

// timerTable owns the per-pickup dispatch state: the pending expiry timer and
// a generation counter. A timer or callback tagged with a stale generation is
// detected and dropped instead of relying on deletion races. The table is a
// liveness aid only; correctness always comes from conditional writes against
// the pickup store.
type timerTable struct {
	mu      sync.Mutex
	entries map[string]*timerEntry
}

type timerEntry struct {
	gen   uint64
	timer *time.Timer
}

func newTimerTable() *timerTable {
	return &timerTable{entries: make(map[string]*timerEntry)}
}

// Bump cancels any armed timer for the pickup and returns a fresh generation
// token. Anything still holding an older token becomes stale.
func (t *timerTable) Bump(id string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[id]
	if e == nil {
		e = &timerEntry{}
		t.entries[id] = e
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
	return e.gen
}

// Arm schedules fn to run after d, provided gen is still the live generation.
func (t *timerTable) Arm(id string, gen uint64, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[id]
	if e == nil || e.gen != gen {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(d, fn)
}

// Matches reports whether gen is still the live generation for the pickup.
func (t *timerTable) Matches(id string, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[id]
	return e != nil && e.gen == gen
}

// Drop cancels any armed timer and discards the entry. Used when the pickup
// reaches a terminal state.
func (t *timerTable) Drop(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[id]
	if e == nil {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(t.entries, id)
}

func (t *timerTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
