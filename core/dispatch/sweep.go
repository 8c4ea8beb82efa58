package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/scraphaul/dispatch/core/logger"
	"github.com/scraphaul/dispatch/core/store"
)

// Sweep is the periodic backstop that re-derives offer timeouts straight from
// the persisted expiries, independent of in-process timers. It keeps the
// engine correct across process restarts and lost timers, and is safe to run
// concurrently with live timers: both paths funnel into the same conditional
// release, so duplicate work collapses to a no-op.
type Sweep struct {
	store    store.PickupStore
	coord    *Coordinator
	interval time.Duration
	logger   logger.Logger
	now      func() time.Time
}

// NewSweep creates a sweep. A non-positive interval selects
// DefaultSweepInterval.
func NewSweep(st store.PickupStore, coord *Coordinator, interval time.Duration, log logger.Logger) (*Sweep, error) {
	if st == nil || coord == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewSweep")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = discardLogger{}
	}
	return &Sweep{store: st, coord: coord, interval: interval, logger: log, now: time.Now}, nil
}

// Run executes one pass per tick until the context is canceled.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Pass(ctx); err != nil {
				s.logger.Errorf("sweep pass: %v", err)
			}
		}
	}
}

// Pass executes a single reconciliation pass over all expired offers.
func (s *Sweep) Pass(ctx context.Context) error {
	expired, err := s.store.ListExpiredOffers(ctx, s.now())
	if err != nil {
		return fmt.Errorf("list expired offers: %w", err)
	}
	for _, p := range expired {
		sweepExpirations.Inc()
		if err := s.coord.TimeoutOffer(ctx, p.ID, p.AssignedVendor); err != nil {
			if store.IsConflict(err) {
				// A live timer or a concurrent actor got there first.
				continue
			}
			s.logger.Errorf("sweep pickup %s: %v", p.ID, err)
		}
	}
	if len(expired) > 0 {
		s.logger.Debugw("sweep pass complete", map[string]any{"expired": len(expired)})
	}
	return nil
}
