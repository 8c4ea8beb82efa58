package events

import (
	"time"

	"github.com/scraphaul/dispatch/core/model"
)

// OfferEvent is published when an offer is extended to a vendor.
type OfferEvent struct {
	PickupID  string
	VendorRef string
	ExpiresAt time.Time
}

// AcceptEvent is published when a vendor wins the assignment.
type AcceptEvent struct {
	PickupID  string
	VendorRef string
	Latency   time.Duration
}

// RejectEvent is published when a vendor is excluded for a pickup.
type RejectEvent struct {
	PickupID  string
	VendorRef string
	Reason    model.RejectionReason
	Err       error
}

// ExhaustedEvent is published when dispatch runs out of candidates and the
// pickup terminates with NO_VENDOR_AVAILABLE.
type ExhaustedEvent struct {
	PickupID string
	Excluded int
}
