package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/scraphaul/dispatch/core/metrics"
)

// PromSink records offer events in Prometheus metrics.
type PromSink struct {
	offers     *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	exhausted  prometheus.Counter
	candidates prometheus.Histogram
}

// NewPromSink registers offer metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(cfg coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	offers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offer_events_total",
		Help: "Total number of offer outcomes",
	}, []string{"vendor_ref", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offer_outcome_latency_seconds",
		Help:    "Time between offer extension and its outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	exhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pickups_exhausted_total",
		Help: "Pickups terminated because no eligible vendor remained",
	})
	candidates := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_eligible_candidates",
		Help:    "Eligible candidate count per dispatch attempt",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
	})

	if err := reg.Register(offers); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			offers = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(exhausted); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			exhausted = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(candidates); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			candidates = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}

	return &PromSink{offers: offers, latency: latency, exhausted: exhausted, candidates: candidates}, nil
}

// RecordOfferResult increments the counter for each offer outcome.
func (s *PromSink) RecordOfferResult(res []coremetrics.OfferResult) error {
	for _, r := range res {
		s.offers.WithLabelValues(r.VendorRef, string(r.Outcome)).Inc()
		if r.Latency > 0 {
			s.latency.WithLabelValues(string(r.Outcome)).Observe(r.Latency.Seconds())
		}
	}
	return nil
}

// RecordExhaustion counts a pickup that ran out of candidates.
func (s *PromSink) RecordExhaustion(_ string, _ int, _ time.Time) error {
	s.exhausted.Inc()
	return nil
}

// RecordCandidateSet observes the eligible candidate count of one attempt.
func (s *PromSink) RecordCandidateSet(_ string, _, eligible int) error {
	s.candidates.Observe(float64(eligible))
	return nil
}
