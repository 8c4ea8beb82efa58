package metrics

import "time"

// OfferOutcome labels the terminal result of one extended offer.
type OfferOutcome string

const (
	OutcomeAccepted    OfferOutcome = "accepted"
	OutcomeRejected    OfferOutcome = "rejected"
	OutcomeTimeout     OfferOutcome = "timeout"
	OutcomeSendFailure OfferOutcome = "send_failure"
)

// OfferResult represents a per-vendor offer event to be recorded.
type OfferResult struct {
	PickupID  string
	VendorRef string
	Outcome   OfferOutcome
	// Latency is the time between extending the offer and learning the
	// outcome. Zero when the outcome was derived by the sweep.
	Latency   time.Duration
	Timestamp time.Time
}

// MetricsSink records offer results for observability purposes.
type MetricsSink interface {
	RecordOfferResult(results []OfferResult) error
}

// ExhaustionRecorder records pickups that ran out of candidates.
type ExhaustionRecorder interface {
	RecordExhaustion(pickupID string, excluded int, at time.Time) error
}

// CandidateSetRecorder records the size of the candidate set seen by a
// dispatch attempt.
type CandidateSetRecorder interface {
	RecordCandidateSet(pickupID string, total, eligible int) error
}

// NopSink discards all records.
type NopSink struct{}

// RecordOfferResult implements MetricsSink.
func (NopSink) RecordOfferResult([]OfferResult) error { return nil }
