package dispatch

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	coremetrics "github.com/scraphaul/dispatch/core/metrics"
)

// WindowTuner suggests the offer window from observed outcomes. The
// coordinator consults it before every extension; implementations must be
// safe for concurrent use.
type WindowTuner interface {
	Observe(outcome coremetrics.OfferOutcome, latency time.Duration)
	// Window returns the suggested offer validity, or fallback while not
	// enough signal has accumulated.
	Window(fallback time.Duration) time.Duration
}

const tunerSampleCap = 256

// QuantileTuner derives the offer window from a high quantile of recent
// acceptance latencies plus headroom, clamped to a configured range. Vendors
// that reliably answer fast shrink the window; frequent timeouts leave the
// fallback in charge because timeouts carry no usable latency.
type QuantileTuner struct {
	quantile  float64
	headroom  float64
	min, max  time.Duration
	sampleMin int

	mu      sync.Mutex
	samples []float64 // seconds, bounded ring
	next    int
	full    bool
}

// NewQuantileTuner builds a tuner from configuration, applying defaults for
// unset fields. Returns nil when the configuration disables tuning.
func NewQuantileTuner(cfg TunerConfig) *QuantileTuner {
	if !cfg.Enabled {
		return nil
	}
	q := cfg.Quantile
	if q <= 0 || q >= 1 {
		q = 0.95
	}
	head := cfg.Headroom
	if head <= 0 {
		head = 1.25
	}
	minW := time.Duration(cfg.MinSeconds) * time.Second
	if minW <= 0 {
		minW = 2 * time.Second
	}
	maxW := time.Duration(cfg.MaxSeconds) * time.Second
	if maxW < minW {
		maxW = DefaultOfferWindow * 3
	}
	sampleMin := cfg.SampleMinimum
	if sampleMin <= 0 {
		sampleMin = 20
	}
	return &QuantileTuner{
		quantile:  q,
		headroom:  head,
		min:       minW,
		max:       maxW,
		sampleMin: sampleMin,
		samples:   make([]float64, 0, tunerSampleCap),
	}
}

// Observe records an acceptance latency. Other outcomes are ignored.
func (t *QuantileTuner) Observe(outcome coremetrics.OfferOutcome, latency time.Duration) {
	if t == nil || outcome != coremetrics.OutcomeAccepted || latency <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) < tunerSampleCap {
		t.samples = append(t.samples, latency.Seconds())
		return
	}
	t.full = true
	t.samples[t.next] = latency.Seconds()
	t.next = (t.next + 1) % tunerSampleCap
}

// Window returns the suggested offer validity.
func (t *QuantileTuner) Window(fallback time.Duration) time.Duration {
	if t == nil {
		return fallback
	}
	t.mu.Lock()
	n := len(t.samples)
	if n < t.sampleMin {
		t.mu.Unlock()
		return fallback
	}
	sorted := append([]float64(nil), t.samples...)
	t.mu.Unlock()

	sort.Float64s(sorted)
	q := stat.Quantile(t.quantile, stat.Empirical, sorted, nil)
	w := time.Duration(q * t.headroom * float64(time.Second))
	if w < t.min {
		return t.min
	}
	if w > t.max {
		return t.max
	}
	return w
}
