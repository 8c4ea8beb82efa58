package model

import "time"

// VendorCandidate describes a vendor backend eligible to receive offers.
// Candidates are sourced fresh from the directory on every dispatch attempt
// and never cached across pickups.
type VendorCandidate struct {
	VendorRef   string    `json:"vendor_ref"`
	Location    GeoPoint  `json:"location"`
	CallbackURL string    `json:"callback_url"`
	Available   bool      `json:"available"`
	LastSeen    time.Time `json:"last_seen"`
}

// RejectionReason classifies why a vendor was excluded for a pickup.
type RejectionReason string

const (
	ReasonExplicitReject RejectionReason = "explicit-reject"
	ReasonTimeout        RejectionReason = "timeout"
	ReasonSendFailure    RejectionReason = "send-failure"
)

// RejectionRecord is one append-only entry of the per-pickup rejection
// ledger. A vendor present in the ledger is never offered the same pickup
// again.
type RejectionRecord struct {
	PickupID  string          `json:"pickup_id"`
	VendorRef string          `json:"vendor_ref"`
	Reason    RejectionReason `json:"reason"`
	Timestamp time.Time       `json:"timestamp"`
}
