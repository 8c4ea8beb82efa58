package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scraphaul/dispatch/core/model"
	"github.com/scraphaul/dispatch/core/store"
)

func TestConfirmAcceptanceSingleWinner(t *testing.T) {
	e := newEngine(t, time.Minute, vendorAt("v1", 48.859, 2.35))
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.coord.Dispatch(ctx, "p1")
	require.NoError(t, err)

	const goroutines = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := e.arb.ConfirmAcceptance(ctx, "p1", "v1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one acceptance may win")
	p, err := e.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAssigned, p.Status)
}

func TestConfirmAcceptanceByNonHolderConflicts(t *testing.T) {
	e := newEngine(t, time.Minute,
		vendorAt("v1", 48.859, 2.35),
		vendorAt("v2", 48.877, 2.35),
	)
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.coord.Dispatch(ctx, "p1")
	require.NoError(t, err)

	_, err = e.arb.ConfirmAcceptance(ctx, "p1", "v2")
	assert.True(t, store.IsConflict(err))

	p, err := e.store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFindingVendor, p.Status)
	assert.Equal(t, "v1", p.AssignedVendor, "losing acceptance must not disturb the hold")
}

func TestConfirmAcceptanceAfterExpiryConflicts(t *testing.T) {
	e := newEngine(t, time.Minute, vendorAt("v1", 48.859, 2.35))
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	// Hold placed directly with a short expiry; no timeout action runs.
	_, err := e.store.HoldOffer(ctx, "p1", "v1", time.Now().Add(30*time.Millisecond))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = e.arb.ConfirmAcceptance(ctx, "p1", "v1")
	assert.True(t, store.IsConflict(err), "acceptance past expiry must lose even before any timeout ran")
}

func TestConfirmAcceptanceUnknownPickup(t *testing.T) {
	e := newEngine(t, time.Minute, vendorAt("v1", 48.859, 2.35))
	_, err := e.arb.ConfirmAcceptance(context.Background(), "missing", "v1")
	assert.True(t, store.IsNotFound(err))
}

func TestHandleRejectionRecordsAndRedispatches(t *testing.T) {
	e := newEngine(t, time.Minute,
		vendorAt("v1", 48.859, 2.35),
		vendorAt("v2", 48.877, 2.35),
	)
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.coord.Dispatch(ctx, "p1")
	require.NoError(t, err)

	p, ignored, err := e.arb.HandleRejection(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.False(t, ignored)
	assert.Equal(t, "v2", p.AssignedVendor)

	rejected, err := e.store.Rejected(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, rejected["v1"])
}

func TestHandleRejectionFromNonHolderIsIgnored(t *testing.T) {
	e := newEngine(t, time.Minute,
		vendorAt("v1", 48.859, 2.35),
		vendorAt("v2", 48.877, 2.35),
	)
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.coord.Dispatch(ctx, "p1")
	require.NoError(t, err)

	p, ignored, err := e.arb.HandleRejection(ctx, "p1", "v2")
	require.NoError(t, err)
	assert.True(t, ignored)
	assert.Equal(t, "v1", p.AssignedVendor, "stale rejection leaves the live offer alone")

	rejected, err := e.store.Rejected(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, rejected["v2"], "ignored rejection stays out of the ledger")
}

func TestHandleRejectionOfLastVendorExhausts(t *testing.T) {
	e := newEngine(t, time.Minute, vendorAt("v1", 48.859, 2.35))
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.coord.Dispatch(ctx, "p1")
	require.NoError(t, err)

	p, ignored, err := e.arb.HandleRejection(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.False(t, ignored)
	assert.Equal(t, model.StatusNoVendorAvailable, p.Status)
}

func TestStatusAdvanceOrdering(t *testing.T) {
	e := newEngine(t, time.Minute, vendorAt("v1", 48.859, 2.35))
	seedPickup(t, e.store, "p1")
	ctx := context.Background()

	_, err := e.coord.Dispatch(ctx, "p1")
	require.NoError(t, err)
	_, err = e.arb.ConfirmAcceptance(ctx, "p1", "v1")
	require.NoError(t, err)

	// Completion before departure is out of order.
	_, err = e.arb.MarkCompleted(ctx, "p1", "v1")
	assert.True(t, store.IsConflict(err))

	p, err := e.arb.MarkOnTheWay(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnTheWay, p.Status)

	// Only the assigned vendor may advance.
	_, err = e.arb.MarkCompleted(ctx, "p1", "v2")
	assert.True(t, store.IsConflict(err))

	p, err = e.arb.MarkCompleted(ctx, "p1", "v1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, p.Status)
	assert.NotNil(t, p.CompletedAt)
}
