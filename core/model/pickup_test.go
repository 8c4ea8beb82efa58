package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRoundTrip(t *testing.T) {
	for s := StatusRequested; s <= StatusNoVendorAvailable; s++ {
		parsed, ok := StatusFromString(s.String())
		require.True(t, ok, s.String())
		assert.Equal(t, s, parsed)
	}
	if _, ok := StatusFromString("bogus"); ok {
		t.Fatalf("expected parse failure")
	}
}

func TestStatusTerminalForDispatch(t *testing.T) {
	assert.False(t, StatusRequested.TerminalForDispatch())
	assert.False(t, StatusFindingVendor.TerminalForDispatch())
	for _, s := range []Status{StatusAssigned, StatusOnTheWay, StatusCompleted, StatusCancelled, StatusNoVendorAvailable} {
		assert.True(t, s.TerminalForDispatch(), s.String())
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(StatusFindingVendor)
	require.NoError(t, err)
	assert.Equal(t, `"FINDING_VENDOR"`, string(b))
	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"ASSIGNED"`), &s))
	assert.Equal(t, StatusAssigned, s)
	assert.Error(t, json.Unmarshal([]byte(`"NOPE"`), &s))
}

func TestPickupValidate(t *testing.T) {
	p := Pickup{ID: "p1", Address: "12 Scrapyard Lane", Items: []PickupItem{{ScrapType: "copper", EstimatedKg: 4}}}
	assert.NoError(t, p.Validate())

	assert.Error(t, Pickup{Address: "a", Items: p.Items}.Validate())
	assert.Error(t, Pickup{ID: "p1", Items: p.Items}.Validate())
	assert.Error(t, Pickup{ID: "p1", Address: "a"}.Validate())
	assert.Error(t, Pickup{ID: "p1", Address: "a", Items: []PickupItem{{ScrapType: ""}}}.Validate())
	assert.Error(t, Pickup{ID: "p1", Address: "a", Items: []PickupItem{{ScrapType: "steel", EstimatedKg: -1}}}.Validate())
}

func TestOfferOpenBoundary(t *testing.T) {
	now := time.Now()
	exp := now.Add(10 * time.Second)
	p := Pickup{Status: StatusFindingVendor, AssignedVendor: "v1", AssignmentExpiresAt: &exp}

	assert.True(t, p.OfferOpen("v1", now))
	assert.False(t, p.OfferOpen("v2", now))
	// The boundary is exclusive: exactly at expiry the offer is closed.
	assert.False(t, p.OfferOpen("v1", exp))
	assert.False(t, p.OfferOpen("v1", exp.Add(time.Nanosecond)))

	p.Status = StatusAssigned
	assert.False(t, p.OfferOpen("v1", now))
}
