package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scraphaul/dispatch/core/model"
)

func TestSweepTimesOutExpiredOffers(t *testing.T) {
	e := newEngine(t, time.Minute, vendorAt("v2", 48.877, 2.35))
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	// A hold left behind by a dead process: expired, no live timer.
	_, err := e.store.HoldOffer(ctx, "p1", "v1", time.Now().Add(-time.Second))
	require.NoError(t, err)

	sweep, err := NewSweep(e.store, e.coord, time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, sweep.Pass(ctx))

	p, err := e.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFindingVendor, p.Status)
	assert.Equal(t, "v2", p.AssignedVendor, "sweep redispatches to the next candidate")

	rejected, err := e.store.Rejected(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, rejected["v1"], "sweep expiry counts as a timeout rejection")
}

func TestSweepPassIsIdempotent(t *testing.T) {
	e := newEngine(t, time.Minute)
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.store.HoldOffer(ctx, "p1", "v1", time.Now().Add(-time.Second))
	require.NoError(t, err)

	sweep, err := NewSweep(e.store, e.coord, time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, sweep.Pass(ctx))
	// With no other candidate the pickup is already terminal; a second pass
	// finds nothing to do.
	require.NoError(t, sweep.Pass(ctx))

	p, err := e.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoVendorAvailable, p.Status)
}

func TestSweepLeavesLiveOffersAlone(t *testing.T) {
	e := newEngine(t, time.Minute, vendorAt("v1", 48.859, 2.35))
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.coord.Dispatch(ctx, "p1")
	require.NoError(t, err)

	sweep, err := NewSweep(e.store, e.coord, time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, sweep.Pass(ctx))

	p, err := e.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "v1", p.AssignedVendor, "an unexpired hold is not the sweep's business")
	assert.Equal(t, []string{"v1"}, e.notifier.vendors())
}

func TestSweepRunStopsOnContextCancel(t *testing.T) {
	e := newEngine(t, time.Minute)
	sweep, err := NewSweep(e.store, e.coord, 10*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweep.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop")
	}
}

func TestNewSweepValidation(t *testing.T) {
	e := newEngine(t, time.Minute)
	_, err := NewSweep(nil, e.coord, time.Minute, nil)
	assert.Error(t, err)
	_, err = NewSweep(e.store, nil, time.Minute, nil)
	assert.Error(t, err)
}
