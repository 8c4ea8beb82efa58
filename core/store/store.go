// Package store defines the persistence boundaries of the dispatch engine.
//
// The persisted pickup record is the single shared mutable resource of the
// system. Every write is a conditional transition matching the record's
// current state, so the engine stays correct with several instances running
// against one store and with in-process timers treated purely as a liveness
// aid.
package store

import (
	"context"
	"time"

	"github.com/scraphaul/dispatch/core/model"
)

// PickupStore persists pickup requests and arbitrates state transitions.
// All transition methods return ErrConflict when the precondition does not
// hold and ErrNotFound when the pickup does not exist; on success they return
// the updated record.
type PickupStore interface {
	// Create durably inserts a new pickup in status REQUESTED.
	Create(ctx context.Context, p model.Pickup) (model.Pickup, error)

	// Get returns the current record.
	Get(ctx context.Context, id string) (model.Pickup, error)

	// HoldOffer moves the pickup to FINDING_VENDOR tentatively assigned to
	// vendorRef with the given expiry. It fails with ErrConflict if the
	// pickup is terminal for dispatch.
	HoldOffer(ctx context.Context, id, vendorRef string, expiresAt time.Time) (model.Pickup, error)

	// ReleaseOffer clears the tentative hold, keeping FINDING_VENDOR, but
	// only while the offer still belongs to vendorRef. Timer fires, sweep
	// passes and explicit rejections all funnel through this condition so
	// duplicate work collapses to ErrConflict.
	ReleaseOffer(ctx context.Context, id, vendorRef string) (model.Pickup, error)

	// ConfirmAssignment atomically promotes FINDING_VENDOR to ASSIGNED iff
	// the offer is still held by vendorRef and has not expired at now.
	ConfirmAssignment(ctx context.Context, id, vendorRef string, now time.Time) (model.Pickup, error)

	// MarkNoVendor terminates the pickup with NO_VENDOR_AVAILABLE and clears
	// the assignment fields. Fails with ErrConflict on terminal pickups.
	MarkNoVendor(ctx context.Context, id string) (model.Pickup, error)

	// Advance moves the pickup between post-assignment statuses
	// (ASSIGNED -> ON_THE_WAY -> COMPLETED), keyed by the assigned vendor.
	Advance(ctx context.Context, id, vendorRef string, from, to model.Status) (model.Pickup, error)

	// Cancel terminates the pickup from REQUESTED or FINDING_VENDOR.
	Cancel(ctx context.Context, id string) (model.Pickup, error)

	// ClearOffer resets a FINDING_VENDOR pickup back to REQUESTED, dropping
	// any held offer. Used by customer-initiated retry.
	ClearOffer(ctx context.Context, id string) (model.Pickup, error)

	// ListExpiredOffers returns pickups in FINDING_VENDOR whose offer expiry
	// lies strictly before now. Drives the reconciliation sweep.
	ListExpiredOffers(ctx context.Context, now time.Time) ([]model.Pickup, error)
}

// RejectionLedger records vendors already excluded for a pickup.
// Entries are append-only for the lifetime of the pickup.
type RejectionLedger interface {
	Add(ctx context.Context, rec model.RejectionRecord) error
	// Rejected returns the set of vendorRefs excluded for the pickup.
	Rejected(ctx context.Context, pickupID string) (map[string]bool, error)
}

// VendorDirectory supplies the current candidate vendors. Implementations
// must return a fresh view on every call.
type VendorDirectory interface {
	Candidates(ctx context.Context) ([]model.VendorCandidate, error)
}
