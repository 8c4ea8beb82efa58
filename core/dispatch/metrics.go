package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	offersExtended   prometheus.Counter
	offerOutcomes    *prometheus.CounterVec
	notifyLatency    prometheus.Histogram
	staleTimerFires  prometheus.Counter
	sweepExpirations prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, *prometheus.CounterVec, prometheus.Histogram, prometheus.Counter, prometheus.Counter) {
	ext := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "offers_extended_total",
			Help: "Number of offers extended to vendors",
		},
	)
	out := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offer_outcomes_total",
			Help: "Offer outcomes by kind",
		},
		[]string{"outcome"},
	)
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vendor_notify_duration_seconds",
			Help:    "Duration of outbound offer deliveries",
			Buckets: prometheus.DefBuckets,
		},
	)
	stale := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_timer_fires_total",
			Help: "Timer fires discarded because a newer generation superseded them",
		},
	)
	sweep := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_expirations_total",
			Help: "Expired offers picked up by the reconciliation sweep",
		},
	)
	return ext, out, lat, stale, sweep
}

func init() {
	offersExtended, offerOutcomes, notifyLatency, staleTimerFires, sweepExpirations = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(offersExtended, offerOutcomes, notifyLatency, staleTimerFires, sweepExpirations)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	offersExtended, offerOutcomes, notifyLatency, staleTimerFires, sweepExpirations = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
