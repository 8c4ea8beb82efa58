package dispatch

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerTableArmAndFire(t *testing.T) {
	tt := newTimerTable()
	gen := tt.Bump("p1")

	fired := make(chan struct{})
	tt.Arm("p1", gen, 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("armed timer did not fire")
	}
}

func TestTimerTableBumpCancelsArmedTimer(t *testing.T) {
	tt := newTimerTable()
	gen := tt.Bump("p1")

	var fires int32
	tt.Arm("p1", gen, 20*time.Millisecond, func() { atomic.AddInt32(&fires, 1) })
	next := tt.Bump("p1")

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fires))
	assert.Equal(t, gen+1, next)
	assert.False(t, tt.Matches("p1", gen))
	assert.True(t, tt.Matches("p1", next))
}

func TestTimerTableArmWithStaleGenerationIsIgnored(t *testing.T) {
	tt := newTimerTable()
	stale := tt.Bump("p1")
	tt.Bump("p1")

	var fires int32
	tt.Arm("p1", stale, 10*time.Millisecond, func() { atomic.AddInt32(&fires, 1) })
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fires))
}

func TestTimerTableDrop(t *testing.T) {
	tt := newTimerTable()
	gen := tt.Bump("p1")

	var fires int32
	tt.Arm("p1", gen, 20*time.Millisecond, func() { atomic.AddInt32(&fires, 1) })
	tt.Drop("p1")

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fires))
	assert.False(t, tt.Matches("p1", gen))
	assert.Zero(t, tt.size())
}

func TestTimerTableGenerationsArePerPickup(t *testing.T) {
	tt := newTimerTable()
	g1 := tt.Bump("p1")
	g2 := tt.Bump("p2")
	assert.Equal(t, g1, g2, "counters start independently")
	tt.Bump("p1")
	assert.True(t, tt.Matches("p2", g2))
	assert.False(t, tt.Matches("p1", g1))
}
