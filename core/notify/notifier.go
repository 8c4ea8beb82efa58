// Package notify defines the outbound vendor offer boundary.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/scraphaul/dispatch/core/model"
)

// OfferPayload is the document delivered to a vendor's callback address when
// an offer is extended.
type OfferPayload struct {
	OfferID   string             `json:"offer_id"`
	PickupID  string             `json:"pickup_id"`
	Address   string             `json:"address"`
	Location  *model.GeoPoint    `json:"location,omitempty"`
	TimeSlot  model.TimeSlot     `json:"time_slot"`
	Items     []model.PickupItem `json:"items"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// VendorNotifier delivers offers to vendor backends. Offer blocks for at
// most the notifier's configured send timeout. Acceptance never arrives
// through this call; vendors answer later through their callback boundary. A
// returned *SendError means the vendor could not be reached or refused the
// delivery and must be treated as an immediate rejection.
type VendorNotifier interface {
	Offer(ctx context.Context, cand model.VendorCandidate, payload OfferPayload) error
}

// SendError classifies a failed offer delivery. It is absorbed by the
// coordinator and never surfaces to callers.
type SendError struct {
	VendorRef  string
	StatusCode int // zero when the transport failed before a response
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("offer to %s refused with status %d", e.VendorRef, e.StatusCode)
	}
	return fmt.Sprintf("offer to %s failed: %v", e.VendorRef, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
