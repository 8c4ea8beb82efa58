package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(base time.Time) []OfferRecord {
	exp := base.Add(10 * time.Second)
	return []OfferRecord{
		{Timestamp: base, PickupID: "p1", VendorRef: "v1", Action: ActionOffered, ExpiresAt: &exp},
		{Timestamp: base.Add(time.Second), PickupID: "p1", VendorRef: "v1", Action: ActionExpired},
		{Timestamp: base.Add(2 * time.Second), PickupID: "p1", VendorRef: "v2", Action: ActionAccepted},
		{Timestamp: base.Add(3 * time.Second), PickupID: "p2", Action: ActionExhausted, Detail: "0 candidates"},
	}
}

func runStoreTest(t *testing.T, store LogStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)
	for _, r := range sampleRecords(base) {
		require.NoError(t, store.Append(ctx, r))
	}

	all, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	byPickup, err := store.Query(ctx, Query{PickupID: "p1"})
	require.NoError(t, err)
	assert.Len(t, byPickup, 3)

	byVendor, err := store.Query(ctx, Query{VendorRef: "v2"})
	require.NoError(t, err)
	require.Len(t, byVendor, 1)
	assert.Equal(t, ActionAccepted, byVendor[0].Action)

	byAction, err := store.Query(ctx, Query{Action: ActionExhausted})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "p2", byAction[0].PickupID)

	windowed, err := store.Query(ctx, Query{Start: base.Add(time.Second), End: base.Add(2 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, windowed, 2)

	require.NoError(t, store.Close())
}

func TestJSONLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.jsonl")
	store, err := NewJSONLStore(path)
	require.NoError(t, err)
	runStoreTest(t, store)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	runStoreTest(t, store)
}

func TestQueryMatches(t *testing.T) {
	now := time.Now()
	r := OfferRecord{Timestamp: now, PickupID: "p1", VendorRef: "v1", Action: ActionOffered}
	assert.True(t, Query{}.Matches(r))
	assert.False(t, Query{PickupID: "p2"}.Matches(r))
	assert.False(t, Query{Start: now.Add(time.Second)}.Matches(r))
	assert.False(t, Query{End: now.Add(-time.Second)}.Matches(r))
	assert.False(t, Query{Action: ActionAccepted}.Matches(r))
}
