// Package audit persists the offer trail of the dispatch engine: every
// extension, outcome and terminal decision, queryable for operations.
package audit

import (
	"context"
	"time"
)

// Action labels one entry of the offer trail.
type Action string

const (
	ActionOffered     Action = "offered"
	ActionAccepted    Action = "accepted"
	ActionRejected    Action = "rejected"
	ActionExpired     Action = "expired"
	ActionSendFailure Action = "send-failure"
	ActionExhausted   Action = "exhausted"
	ActionCancelled   Action = "cancelled"
)

// OfferRecord captures one dispatch decision.
type OfferRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	PickupID  string     `json:"pickup_id"`
	VendorRef string     `json:"vendor_ref,omitempty"`
	Action    Action     `json:"action"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start     time.Time
	End       time.Time
	PickupID  string
	VendorRef string
	Action    Action
}

// Matches reports whether the record passes the query filters.
func (q Query) Matches(r OfferRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.PickupID != "" && r.PickupID != q.PickupID {
		return false
	}
	if q.VendorRef != "" && r.VendorRef != q.VendorRef {
		return false
	}
	if q.Action != "" && r.Action != q.Action {
		return false
	}
	return true
}

// LogStore persists OfferRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec OfferRecord) error
	Query(ctx context.Context, q Query) ([]OfferRecord, error)
	Close() error
}
