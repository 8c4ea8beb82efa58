package metrics

import (
	"time"

	coremetrics "github.com/scraphaul/dispatch/core/metrics"
)

// MultiSink fans offer results out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOfferResult forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordOfferResult(res []coremetrics.OfferResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordOfferResult(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordExhaustion forwards exhaustion events to sinks that support them.
func (m *MultiSink) RecordExhaustion(pickupID string, excluded int, at time.Time) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.ExhaustionRecorder); ok {
			if err := rec.RecordExhaustion(pickupID, excluded, at); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCandidateSet forwards candidate counts to sinks that support them.
func (m *MultiSink) RecordCandidateSet(pickupID string, total, eligible int) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(coremetrics.CandidateSetRecorder); ok {
			if err := rec.RecordCandidateSet(pickupID, total, eligible); err != nil {
				return err
			}
		}
	}
	return nil
}
