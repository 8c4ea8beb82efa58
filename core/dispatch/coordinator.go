package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scraphaul/dispatch/core/dispatch/audit"
	"github.com/scraphaul/dispatch/core/events"
	"github.com/scraphaul/dispatch/core/logger"
	coremetrics "github.com/scraphaul/dispatch/core/metrics"
	"github.com/scraphaul/dispatch/core/model"
	"github.com/scraphaul/dispatch/core/notify"
	"github.com/scraphaul/dispatch/core/store"
	"github.com/scraphaul/dispatch/internal/eventbus"
)

// Coordinator orchestrates candidate selection, sequential offer fanout and
// per-pickup expiry timers. It is the only component that extends offers.
// All of its state transitions go through conditional writes on the pickup
// store, so several coordinators may safely run against a shared store; the
// in-process timer table only makes timeouts proactive.
type Coordinator struct {
	store     store.PickupStore
	ledger    store.RejectionLedger
	directory store.VendorDirectory
	notifier  notify.VendorNotifier

	offerWindow time.Duration
	timers      *timerTable
	logger      logger.Logger
	metrics     coremetrics.MetricsSink
	bus         eventbus.EventBus
	now         func() time.Time

	mu    sync.Mutex
	trail audit.LogStore
	tuner WindowTuner
}

// NewCoordinator creates a new coordinator. offerWindow defines how long an
// extended offer stays valid; zero selects DefaultOfferWindow.
func NewCoordinator(st store.PickupStore, ledger store.RejectionLedger, dir store.VendorDirectory, notifier notify.VendorNotifier, offerWindow time.Duration, sink coremetrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*Coordinator, error) {
	if st == nil || ledger == nil || dir == nil || notifier == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewCoordinator")
	}
	if offerWindow <= 0 {
		offerWindow = DefaultOfferWindow
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	if log == nil {
		log = discardLogger{}
	}
	return &Coordinator{
		store:       st,
		ledger:      ledger,
		directory:   dir,
		notifier:    notifier,
		offerWindow: offerWindow,
		timers:      newTimerTable(),
		logger:      log,
		metrics:     sink,
		bus:         bus,
		now:         time.Now,
	}, nil
}

// SetAuditStore configures the store used to persist the offer trail.
func (c *Coordinator) SetAuditStore(s audit.LogStore) {
	c.mu.Lock()
	c.trail = s
	c.mu.Unlock()
}

// SetTuner configures the adaptive offer-window suggestion.
func (c *Coordinator) SetTuner(t WindowTuner) {
	c.mu.Lock()
	c.tuner = t
	c.mu.Unlock()
}

// Window returns the offer validity the next extension will use.
func (c *Coordinator) Window() time.Duration {
	c.mu.Lock()
	t := c.tuner
	c.mu.Unlock()
	if t != nil {
		return t.Window(c.offerWindow)
	}
	return c.offerWindow
}

// Close releases resources held by the coordinator.
func (c *Coordinator) Close() error {
	if c.bus != nil {
		c.bus.Close()
	}
	c.mu.Lock()
	trail := c.trail
	c.mu.Unlock()
	if trail != nil {
		return trail.Close()
	}
	return nil
}

// Dispatch extends an offer for the pickup to the nearest eligible vendor.
// It is re-entrant: creation, customer retry, explicit rejection and timeout
// all funnel through it. Dispatch on a terminal pickup is a no-op, not an
// error. The returned pickup reflects the state after the call: a tentative
// hold, NO_VENDOR_AVAILABLE, or the untouched terminal record.
func (c *Coordinator) Dispatch(ctx context.Context, pickupID string) (model.Pickup, error) {
	gen := c.timers.Bump(pickupID)
	return c.dispatch(ctx, pickupID, gen)
}

func (c *Coordinator) dispatch(ctx context.Context, pickupID string, gen uint64) (model.Pickup, error) {
	for {
		p, err := c.store.Get(ctx, pickupID)
		if err != nil {
			return model.Pickup{}, fmt.Errorf("load pickup: %w", err)
		}
		if p.Status.TerminalForDispatch() {
			c.timers.Drop(pickupID)
			return p, nil
		}

		cands, err := c.directory.Candidates(ctx)
		if err != nil {
			return model.Pickup{}, fmt.Errorf("vendor directory: %w", err)
		}
		rejected, err := c.ledger.Rejected(ctx, pickupID)
		if err != nil {
			return model.Pickup{}, fmt.Errorf("rejection ledger: %w", err)
		}
		eligible := eligibleCandidates(cands, rejected, p.Location)
		if cr, ok := c.metrics.(coremetrics.CandidateSetRecorder); ok {
			if err := cr.RecordCandidateSet(pickupID, len(cands), len(eligible)); err != nil {
				c.logger.Errorf("candidate metrics error: %v", err)
			}
		}

		if len(eligible) == 0 {
			return c.exhaust(ctx, pickupID, len(rejected))
		}

		cand := eligible[0]
		expiresAt := c.now().Add(c.Window())
		p, err = c.store.HoldOffer(ctx, pickupID, cand.VendorRef, expiresAt)
		if store.IsConflict(err) {
			// The pickup went terminal between the read and the hold.
			c.timers.Drop(pickupID)
			return c.store.Get(ctx, pickupID)
		}
		if err != nil {
			return model.Pickup{}, fmt.Errorf("hold offer: %w", err)
		}

		// Arm before notifying so the expiry fires even if the send stalls
		// for the whole timeout.
		vendorRef := cand.VendorRef
		c.timers.Arm(pickupID, gen, expiresAt.Sub(c.now()), func() {
			c.onTimerFire(pickupID, gen, vendorRef)
		})

		offersExtended.Inc()
		c.publish(events.OfferEvent{PickupID: pickupID, VendorRef: vendorRef, ExpiresAt: expiresAt})
		c.appendTrail(ctx, audit.OfferRecord{
			Timestamp: c.now(), PickupID: pickupID, VendorRef: vendorRef,
			Action: audit.ActionOffered, ExpiresAt: &expiresAt,
		})
		c.logger.Infof("offered pickup %s to vendor %s until %s", pickupID, vendorRef, expiresAt.Format(time.RFC3339))

		start := c.now()
		err = c.notifier.Offer(ctx, cand, c.payload(p, expiresAt))
		notifyLatency.Observe(c.now().Sub(start).Seconds())
		if err == nil {
			return p, nil
		}

		// A send failure counts as an immediate rejection: record it,
		// invalidate the timer we just armed and move to the next candidate.
		offerOutcomes.WithLabelValues(string(coremetrics.OutcomeSendFailure)).Inc()
		c.logger.Warnf("offer to vendor %s failed: %v", vendorRef, err)
		c.publish(events.RejectEvent{PickupID: pickupID, VendorRef: vendorRef, Reason: model.ReasonSendFailure, Err: err})
		c.appendTrail(ctx, audit.OfferRecord{
			Timestamp: c.now(), PickupID: pickupID, VendorRef: vendorRef,
			Action: audit.ActionSendFailure, Detail: err.Error(),
		})
		c.recordOutcome(pickupID, vendorRef, coremetrics.OutcomeSendFailure, c.now().Sub(start))
		if lerr := c.ledger.Add(ctx, model.RejectionRecord{
			PickupID: pickupID, VendorRef: vendorRef,
			Reason: model.ReasonSendFailure, Timestamp: c.now(),
		}); lerr != nil {
			return model.Pickup{}, fmt.Errorf("rejection ledger: %w", lerr)
		}
		if _, rerr := c.store.ReleaseOffer(ctx, pickupID, vendorRef); rerr != nil && !store.IsConflict(rerr) {
			return model.Pickup{}, fmt.Errorf("release offer: %w", rerr)
		}
		gen = c.timers.Bump(pickupID)
	}
}

// exhaust terminates the pickup because no eligible candidate remains.
func (c *Coordinator) exhaust(ctx context.Context, pickupID string, excluded int) (model.Pickup, error) {
	p, err := c.store.MarkNoVendor(ctx, pickupID)
	if store.IsConflict(err) {
		// Someone else closed the pickup first; report what they decided.
		c.timers.Drop(pickupID)
		return c.store.Get(ctx, pickupID)
	}
	if err != nil {
		return model.Pickup{}, fmt.Errorf("mark no vendor: %w", err)
	}
	c.timers.Drop(pickupID)
	offerOutcomes.WithLabelValues("exhausted").Inc()
	c.publish(events.ExhaustedEvent{PickupID: pickupID, Excluded: excluded})
	c.appendTrail(ctx, audit.OfferRecord{
		Timestamp: c.now(), PickupID: pickupID, Action: audit.ActionExhausted,
		Detail: fmt.Sprintf("%d vendors excluded", excluded),
	})
	if er, ok := c.metrics.(coremetrics.ExhaustionRecorder); ok {
		if err := er.RecordExhaustion(pickupID, excluded, c.now()); err != nil {
			c.logger.Errorf("exhaustion metrics error: %v", err)
		}
	}
	c.logger.Warnf("pickup %s: no vendor available (%d excluded)", pickupID, excluded)
	return p, nil
}

// onTimerFire is the live-timer expiry path. A fire tagged with a stale
// generation is discarded; the conditional release below handles every other
// race.
func (c *Coordinator) onTimerFire(pickupID string, gen uint64, vendorRef string) {
	if !c.timers.Matches(pickupID, gen) {
		staleTimerFires.Inc()
		return
	}
	ctx := context.Background()
	if err := c.TimeoutOffer(ctx, pickupID, vendorRef); err != nil && !store.IsConflict(err) {
		c.logger.Errorf("timeout pickup %s: %v", pickupID, err)
	}
}

// TimeoutOffer re-derives the expiry of the offer held by vendorRef: it
// conditionally releases the hold, records a timeout rejection and
// redispatches. Shared between live timers and the reconciliation sweep;
// store.ErrConflict means another actor already resolved the offer and the
// call collapsed to a no-op.
func (c *Coordinator) TimeoutOffer(ctx context.Context, pickupID, vendorRef string) error {
	if _, err := c.store.ReleaseOffer(ctx, pickupID, vendorRef); err != nil {
		return err
	}
	offerOutcomes.WithLabelValues(string(coremetrics.OutcomeTimeout)).Inc()
	c.publish(events.RejectEvent{PickupID: pickupID, VendorRef: vendorRef, Reason: model.ReasonTimeout})
	c.appendTrail(ctx, audit.OfferRecord{
		Timestamp: c.now(), PickupID: pickupID, VendorRef: vendorRef, Action: audit.ActionExpired,
	})
	c.recordOutcome(pickupID, vendorRef, coremetrics.OutcomeTimeout, c.Window())
	c.logger.Infof("offer for pickup %s to vendor %s expired", pickupID, vendorRef)
	if err := c.ledger.Add(ctx, model.RejectionRecord{
		PickupID: pickupID, VendorRef: vendorRef,
		Reason: model.ReasonTimeout, Timestamp: c.now(),
	}); err != nil {
		return fmt.Errorf("rejection ledger: %w", err)
	}
	_, err := c.Dispatch(ctx, pickupID)
	return err
}

// Cancel terminates the pickup on behalf of the customer. The outstanding
// generation is invalidated before any state is touched so no timer can race
// a new offer in after the cancel.
func (c *Coordinator) Cancel(ctx context.Context, pickupID string) (model.Pickup, error) {
	c.timers.Bump(pickupID)
	p, err := c.store.Cancel(ctx, pickupID)
	if err != nil {
		return model.Pickup{}, err
	}
	c.timers.Drop(pickupID)
	c.appendTrail(ctx, audit.OfferRecord{Timestamp: c.now(), PickupID: pickupID, Action: audit.ActionCancelled})
	c.logger.Infof("pickup %s cancelled", pickupID)
	return p, nil
}

// Retry clears the current offer fields on behalf of the customer and runs a
// fresh dispatch.
func (c *Coordinator) Retry(ctx context.Context, pickupID string) (model.Pickup, error) {
	c.timers.Bump(pickupID)
	if _, err := c.store.ClearOffer(ctx, pickupID); err != nil {
		return model.Pickup{}, err
	}
	return c.Dispatch(ctx, pickupID)
}

// DiscardState drops the in-memory dispatch state for a pickup that reached
// a terminal decision elsewhere (acceptance).
func (c *Coordinator) DiscardState(pickupID string) {
	c.timers.Bump(pickupID)
	c.timers.Drop(pickupID)
}

// ObserveOutcome feeds the window tuner and the metrics sink. Exposed to the
// arbiter, which learns outcomes the coordinator never sees directly.
func (c *Coordinator) ObserveOutcome(pickupID, vendorRef string, outcome coremetrics.OfferOutcome, latency time.Duration) {
	c.recordOutcome(pickupID, vendorRef, outcome, latency)
}

func (c *Coordinator) recordOutcome(pickupID, vendorRef string, outcome coremetrics.OfferOutcome, latency time.Duration) {
	c.mu.Lock()
	tuner := c.tuner
	c.mu.Unlock()
	if tuner != nil {
		tuner.Observe(outcome, latency)
	}
	if err := c.metrics.RecordOfferResult([]coremetrics.OfferResult{{
		PickupID:  pickupID,
		VendorRef: vendorRef,
		Outcome:   outcome,
		Latency:   latency,
		Timestamp: c.now(),
	}}); err != nil {
		c.logger.Errorf("metrics error: %v", err)
	}
}

func (c *Coordinator) payload(p model.Pickup, expiresAt time.Time) notify.OfferPayload {
	return notify.OfferPayload{
		OfferID:   uuid.NewString(),
		PickupID:  p.ID,
		Address:   p.Address,
		Location:  p.Location,
		TimeSlot:  p.TimeSlot,
		Items:     p.Items,
		ExpiresAt: expiresAt,
	}
}

func (c *Coordinator) publish(e eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func (c *Coordinator) appendTrail(ctx context.Context, rec audit.OfferRecord) {
	c.mu.Lock()
	trail := c.trail
	c.mu.Unlock()
	if trail != nil {
		_ = trail.Append(ctx, rec)
	}
}

// discardLogger backs a nil logger argument.
type discardLogger struct{}

func (discardLogger) Debugf(string, ...any)         {}
func (discardLogger) Debugw(string, map[string]any) {}
func (discardLogger) Infof(string, ...any)          {}
func (discardLogger) Warnf(string, ...any)          {}
func (discardLogger) Errorf(string, ...any)         {}
