package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/scraphaul/dispatch/core/metrics"
)

func TestNewQuantileTunerDisabled(t *testing.T) {
	assert.Nil(t, NewQuantileTuner(TunerConfig{}))
}

func TestQuantileTunerFallbackBelowSampleMinimum(t *testing.T) {
	tuner := NewQuantileTuner(TunerConfig{Enabled: true, SampleMinimum: 5})
	require.NotNil(t, tuner)

	for i := 0; i < 4; i++ {
		tuner.Observe(coremetrics.OutcomeAccepted, 3*time.Second)
	}
	assert.Equal(t, DefaultOfferWindow, tuner.Window(DefaultOfferWindow))
}

func TestQuantileTunerShrinksWindowForFastVendors(t *testing.T) {
	tuner := NewQuantileTuner(TunerConfig{
		Enabled: true, Quantile: 0.95, Headroom: 1.25,
		MinSeconds: 2, MaxSeconds: 30, SampleMinimum: 10,
	})
	for i := 0; i < 50; i++ {
		tuner.Observe(coremetrics.OutcomeAccepted, 2*time.Second)
	}
	w := tuner.Window(DefaultOfferWindow)
	// q95 of a constant 2s with 1.25 headroom.
	assert.InDelta(t, (2500 * time.Millisecond).Seconds(), w.Seconds(), 0.1)
}

func TestQuantileTunerClampsToRange(t *testing.T) {
	tuner := NewQuantileTuner(TunerConfig{
		Enabled: true, MinSeconds: 5, MaxSeconds: 8, SampleMinimum: 10,
	})
	for i := 0; i < 20; i++ {
		tuner.Observe(coremetrics.OutcomeAccepted, 100*time.Millisecond)
	}
	assert.Equal(t, 5*time.Second, tuner.Window(DefaultOfferWindow), "fast answers clamp to the floor")

	tuner = NewQuantileTuner(TunerConfig{
		Enabled: true, MinSeconds: 2, MaxSeconds: 4, SampleMinimum: 10,
	})
	for i := 0; i < 20; i++ {
		tuner.Observe(coremetrics.OutcomeAccepted, time.Minute)
	}
	assert.Equal(t, 4*time.Second, tuner.Window(DefaultOfferWindow), "slow answers clamp to the ceiling")
}

func TestQuantileTunerIgnoresNonAcceptOutcomes(t *testing.T) {
	tuner := NewQuantileTuner(TunerConfig{Enabled: true, SampleMinimum: 5})
	for i := 0; i < 20; i++ {
		tuner.Observe(coremetrics.OutcomeTimeout, 10*time.Second)
		tuner.Observe(coremetrics.OutcomeSendFailure, time.Second)
		tuner.Observe(coremetrics.OutcomeRejected, time.Second)
	}
	assert.Equal(t, DefaultOfferWindow, tuner.Window(DefaultOfferWindow), "only acceptance latencies carry signal")
}

func TestQuantileTunerSampleCapBounded(t *testing.T) {
	tuner := NewQuantileTuner(TunerConfig{Enabled: true, SampleMinimum: 10, MinSeconds: 1, MaxSeconds: 600})
	// Old slow samples get overwritten once the ring wraps.
	for i := 0; i < tunerSampleCap; i++ {
		tuner.Observe(coremetrics.OutcomeAccepted, 60*time.Second)
	}
	for i := 0; i < tunerSampleCap; i++ {
		tuner.Observe(coremetrics.OutcomeAccepted, 2*time.Second)
	}
	w := tuner.Window(DefaultOfferWindow)
	assert.Less(t, w, 10*time.Second, "window follows recent samples after the ring wraps")
	assert.Len(t, tuner.samples, tunerSampleCap)
}
