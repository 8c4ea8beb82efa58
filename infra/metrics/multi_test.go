package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coremetrics "github.com/scraphaul/dispatch/core/metrics"
)

type recordingSink struct {
	results []coremetrics.OfferResult
	err     error
}

func (r *recordingSink) RecordOfferResult(res []coremetrics.OfferResult) error {
	r.results = append(r.results, res...)
	return r.err
}

func TestMultiSinkFanout(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	res := []coremetrics.OfferResult{{PickupID: "p1", VendorRef: "v1", Outcome: coremetrics.OutcomeAccepted, Timestamp: time.Now()}}
	assert.NoError(t, m.RecordOfferResult(res))
	assert.Len(t, a.results, 1)
	assert.Len(t, b.results, 1)
}

func TestMultiSinkFirstError(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{err: boom}
	b := &recordingSink{}
	m := NewMultiSink(a, b)

	err := m.RecordOfferResult([]coremetrics.OfferResult{{PickupID: "p1"}})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.results)
}

func TestMultiSinkSkipsUnsupportedRecorders(t *testing.T) {
	a := &recordingSink{}
	m := NewMultiSink(a)
	assert.NoError(t, m.RecordExhaustion("p1", 3, time.Now()))
	assert.NoError(t, m.RecordCandidateSet("p1", 5, 2))
}

func TestPromSinkRegisters(t *testing.T) {
	sink, err := NewPromSinkWithRegistry(coremetrics.Config{}, nil)
	assert.NoError(t, err)
	assert.NoError(t, sink.RecordOfferResult([]coremetrics.OfferResult{
		{PickupID: "p1", VendorRef: "v1", Outcome: coremetrics.OutcomeTimeout, Latency: time.Second},
	}))
	// Registering twice reuses the existing collectors.
	_, err = NewPromSinkWithRegistry(coremetrics.Config{}, nil)
	assert.NoError(t, err)
}
