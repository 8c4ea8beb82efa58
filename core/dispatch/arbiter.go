package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/scraphaul/dispatch/core/dispatch/audit"
	"github.com/scraphaul/dispatch/core/events"
	"github.com/scraphaul/dispatch/core/logger"
	coremetrics "github.com/scraphaul/dispatch/core/metrics"
	"github.com/scraphaul/dispatch/core/model"
	"github.com/scraphaul/dispatch/core/store"
	"github.com/scraphaul/dispatch/internal/eventbus"
)

// Arbiter enforces the winner-takes-all transition to ASSIGNED and processes
// vendor rejections. Every decision is a single conditional write against the
// pickup store; the arbiter never takes process-wide locks.
type Arbiter struct {
	store  store.PickupStore
	ledger store.RejectionLedger
	coord  *Coordinator
	logger logger.Logger
	bus    eventbus.EventBus
	now    func() time.Time
}

// NewArbiter creates a new arbiter bound to the coordinator handling
// redispatch.
func NewArbiter(st store.PickupStore, ledger store.RejectionLedger, coord *Coordinator, bus eventbus.EventBus, log logger.Logger) (*Arbiter, error) {
	if st == nil || ledger == nil || coord == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewArbiter")
	}
	if log == nil {
		log = discardLogger{}
	}
	return &Arbiter{store: st, ledger: ledger, coord: coord, logger: log, bus: bus, now: time.Now}, nil
}

// ConfirmAcceptance performs the race-critical winner election. It succeeds
// only while the pickup is FINDING_VENDOR, held by vendorRef and not yet
// expired; every other caller observes store.ErrConflict and no mutation.
// On success the in-memory dispatch state is discarded and the updated
// projection returned.
func (a *Arbiter) ConfirmAcceptance(ctx context.Context, pickupID, vendorRef string) (model.Pickup, error) {
	now := a.now()
	// Advisory read for the latency estimate only; the conditional write
	// below is what elects the winner.
	latency := time.Duration(0)
	if prior, err := a.store.Get(ctx, pickupID); err == nil && prior.AssignmentExpiresAt != nil {
		if remaining := prior.AssignmentExpiresAt.Sub(now); remaining > 0 && remaining < a.coord.Window() {
			latency = a.coord.Window() - remaining
		}
	}
	p, err := a.store.ConfirmAssignment(ctx, pickupID, vendorRef, now)
	if err != nil {
		if store.IsConflict(err) {
			offerOutcomes.WithLabelValues("conflict").Inc()
			a.logger.Debugf("acceptance for pickup %s by %s lost the race", pickupID, vendorRef)
		}
		return model.Pickup{}, err
	}
	a.coord.DiscardState(pickupID)

	offerOutcomes.WithLabelValues(string(coremetrics.OutcomeAccepted)).Inc()
	a.publish(events.AcceptEvent{PickupID: pickupID, VendorRef: vendorRef, Latency: latency})
	a.coord.appendTrail(ctx, audit.OfferRecord{
		Timestamp: now, PickupID: pickupID, VendorRef: vendorRef, Action: audit.ActionAccepted,
	})
	a.coord.ObserveOutcome(pickupID, vendorRef, coremetrics.OutcomeAccepted, latency)
	a.logger.Infof("pickup %s assigned to vendor %s", pickupID, vendorRef)
	return p, nil
}

// HandleRejection processes an explicit vendor rejection. A rejection from a
// vendor that no longer holds the offer is reported as ignored rather than
// an error, guarding against stale callbacks from vendors that already lost
// the race. On a matching rejection the vendor is recorded in the ledger and
// the pickup redispatched synchronously.
func (a *Arbiter) HandleRejection(ctx context.Context, pickupID, vendorRef string) (p model.Pickup, ignored bool, err error) {
	if _, err := a.store.ReleaseOffer(ctx, pickupID, vendorRef); err != nil {
		if !store.IsConflict(err) {
			return model.Pickup{}, false, err
		}
		p, gerr := a.store.Get(ctx, pickupID)
		if gerr != nil {
			return model.Pickup{}, false, gerr
		}
		a.logger.Debugf("stale rejection for pickup %s by %s ignored", pickupID, vendorRef)
		return p, true, nil
	}

	now := a.now()
	offerOutcomes.WithLabelValues(string(coremetrics.OutcomeRejected)).Inc()
	a.publish(events.RejectEvent{PickupID: pickupID, VendorRef: vendorRef, Reason: model.ReasonExplicitReject})
	a.coord.appendTrail(ctx, audit.OfferRecord{
		Timestamp: now, PickupID: pickupID, VendorRef: vendorRef, Action: audit.ActionRejected,
	})
	a.coord.ObserveOutcome(pickupID, vendorRef, coremetrics.OutcomeRejected, 0)
	if err := a.ledger.Add(ctx, model.RejectionRecord{
		PickupID: pickupID, VendorRef: vendorRef,
		Reason: model.ReasonExplicitReject, Timestamp: now,
	}); err != nil {
		return model.Pickup{}, false, fmt.Errorf("rejection ledger: %w", err)
	}
	a.logger.Infof("vendor %s rejected pickup %s, redispatching", vendorRef, pickupID)
	p, err = a.coord.Dispatch(ctx, pickupID)
	return p, false, err
}

// MarkOnTheWay advances an assigned pickup when the vendor reports leaving
// for the collection.
func (a *Arbiter) MarkOnTheWay(ctx context.Context, pickupID, vendorRef string) (model.Pickup, error) {
	return a.store.Advance(ctx, pickupID, vendorRef, model.StatusAssigned, model.StatusOnTheWay)
}

// MarkCompleted advances a pickup when the vendor reports the collection done.
func (a *Arbiter) MarkCompleted(ctx context.Context, pickupID, vendorRef string) (model.Pickup, error) {
	return a.store.Advance(ctx, pickupID, vendorRef, model.StatusOnTheWay, model.StatusCompleted)
}

func (a *Arbiter) publish(e eventbus.Event) {
	if a.bus != nil {
		a.bus.Publish(e)
	}
}
