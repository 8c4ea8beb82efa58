package dispatch

import "time"

// DefaultOfferWindow is the validity of an extended offer before it expires.
const DefaultOfferWindow = 10 * time.Second

// DefaultSweepInterval is the period of the reconciliation sweep.
const DefaultSweepInterval = 10 * time.Second

// Config defines dispatch-related settings.
type Config struct {
	OfferWindowSeconds   int         `json:"offer_window_seconds"`
	SweepIntervalSeconds int         `json:"sweep_interval_seconds"`
	Tuner                TunerConfig `json:"tuner"`
}

// TunerConfig controls the adaptive offer-window suggestion.
type TunerConfig struct {
	Enabled       bool    `json:"enabled"`
	Quantile      float64 `json:"quantile"`
	Headroom      float64 `json:"headroom"`
	MinSeconds    int     `json:"min_seconds"`
	MaxSeconds    int     `json:"max_seconds"`
	SampleMinimum int     `json:"sample_minimum"`
}

// OfferWindow returns the configured offer validity or the default.
func (c Config) OfferWindow() time.Duration {
	if c.OfferWindowSeconds <= 0 {
		return DefaultOfferWindow
	}
	return time.Duration(c.OfferWindowSeconds) * time.Second
}

// SweepInterval returns the configured sweep period or the default.
func (c Config) SweepInterval() time.Duration {
	if c.SweepIntervalSeconds <= 0 {
		return DefaultSweepInterval
	}
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
