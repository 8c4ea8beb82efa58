package model

import (
	"fmt"
	"time"
)

// Status defines the lifecycle state of a pickup request.
type Status int

const (
	StatusRequested Status = iota
	StatusFindingVendor
	StatusAssigned
	StatusOnTheWay
	StatusCompleted
	StatusCancelled
	StatusNoVendorAvailable
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusRequested:
		return "REQUESTED"
	case StatusFindingVendor:
		return "FINDING_VENDOR"
	case StatusAssigned:
		return "ASSIGNED"
	case StatusOnTheWay:
		return "ON_THE_WAY"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusNoVendorAvailable:
		return "NO_VENDOR_AVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// StatusFromString parses the stored representation of a status.
func StatusFromString(s string) (Status, bool) {
	switch s {
	case "REQUESTED":
		return StatusRequested, true
	case "FINDING_VENDOR":
		return StatusFindingVendor, true
	case "ASSIGNED":
		return StatusAssigned, true
	case "ON_THE_WAY":
		return StatusOnTheWay, true
	case "COMPLETED":
		return StatusCompleted, true
	case "CANCELLED":
		return StatusCancelled, true
	case "NO_VENDOR_AVAILABLE":
		return StatusNoVendorAvailable, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes the string form of a status.
func (s *Status) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if len(raw) >= 2 && raw[0] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	v, ok := StatusFromString(raw)
	if !ok {
		return fmt.Errorf("unknown status %q", raw)
	}
	*s = v
	return nil
}

// TerminalForDispatch reports whether no further offers may be issued for a
// pickup in this status.
func (s Status) TerminalForDispatch() bool {
	switch s {
	case StatusAssigned, StatusOnTheWay, StatusCompleted, StatusCancelled, StatusNoVendorAvailable:
		return true
	default:
		return false
	}
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeSlot is the window the customer expects the collection to happen in.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PickupItem is one requested line of scrap to collect.
type PickupItem struct {
	ScrapType   string  `json:"scrap_type"`
	EstimatedKg float64 `json:"estimated_kg"`
}

// Pickup represents a customer's scrap-collection request. The persisted
// record is the single authoritative source for assignment decisions; it is
// only ever mutated through conditional transitions.
type Pickup struct {
	ID                  string       `json:"id"`
	CustomerID          string       `json:"customer_id"`
	Status              Status       `json:"status"`
	Address             string       `json:"address"`
	Location            *GeoPoint    `json:"location,omitempty"`
	TimeSlot            TimeSlot     `json:"time_slot"`
	Items               []PickupItem `json:"items"`
	AssignedVendor      string       `json:"assigned_vendor,omitempty"`
	AssignmentExpiresAt *time.Time   `json:"assignment_expires_at,omitempty"`
	CancelledAt         *time.Time   `json:"cancelled_at,omitempty"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}

// Validate checks that the pickup is sound enough to dispatch.
func (p Pickup) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pickup id is required")
	}
	if p.Address == "" {
		return fmt.Errorf("pickup address is required")
	}
	if len(p.Items) == 0 {
		return fmt.Errorf("pickup requires at least one item")
	}
	for _, it := range p.Items {
		if it.ScrapType == "" {
			return fmt.Errorf("item scrap type is required")
		}
		if it.EstimatedKg < 0 {
			return fmt.Errorf("item quantity must not be negative")
		}
	}
	return nil
}

// OfferOpen reports whether the pickup currently holds a live offer for the
// given vendor at the given instant. The expiry bound is strict: an offer is
// no longer open at its exact expiry time.
func (p Pickup) OfferOpen(vendorRef string, now time.Time) bool {
	return p.Status == StatusFindingVendor &&
		p.AssignedVendor == vendorRef &&
		p.AssignmentExpiresAt != nil &&
		now.Before(*p.AssignmentExpiresAt)
}
