// Package store provides the persistence implementations of the dispatch
// engine: an in-memory store for tests and single-node runs, and a SQLite
// store for durable deployments. Both enforce the same conditional-transition
// semantics.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/scraphaul/dispatch/core/model"
	corestore "github.com/scraphaul/dispatch/core/store"
)

// MemoryStore keeps pickups and the rejection ledger in process memory. All
// transitions run under one mutex, which gives the same atomicity guarantees
// the SQLite conditional updates provide.
type MemoryStore struct {
	mu         sync.Mutex
	pickups    map[string]model.Pickup
	rejections map[string][]model.RejectionRecord
}

var (
	_ corestore.PickupStore     = (*MemoryStore)(nil)
	_ corestore.RejectionLedger = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pickups:    make(map[string]model.Pickup),
		rejections: make(map[string][]model.RejectionRecord),
	}
}

func clonePickup(p model.Pickup) model.Pickup {
	out := p
	out.Items = append([]model.PickupItem(nil), p.Items...)
	if p.Location != nil {
		loc := *p.Location
		out.Location = &loc
	}
	if p.AssignmentExpiresAt != nil {
		t := *p.AssignmentExpiresAt
		out.AssignmentExpiresAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		out.CancelledAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Create durably inserts a new pickup in status REQUESTED.
func (s *MemoryStore) Create(_ context.Context, p model.Pickup) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pickups[p.ID]; exists {
		return model.Pickup{}, corestore.ErrConflict
	}
	p.Status = model.StatusRequested
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.pickups[p.ID] = clonePickup(p)
	return clonePickup(p), nil
}

// Get returns the current record.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	return clonePickup(p), nil
}

// HoldOffer tentatively assigns the pickup to vendorRef until expiresAt.
func (s *MemoryStore) HoldOffer(_ context.Context, id, vendorRef string, expiresAt time.Time) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if p.Status.TerminalForDispatch() {
		return model.Pickup{}, corestore.ErrConflict
	}
	p.Status = model.StatusFindingVendor
	p.AssignedVendor = vendorRef
	p.AssignmentExpiresAt = &expiresAt
	s.pickups[id] = p
	return clonePickup(p), nil
}

// ReleaseOffer clears the hold while it still belongs to vendorRef.
func (s *MemoryStore) ReleaseOffer(_ context.Context, id, vendorRef string) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if p.Status != model.StatusFindingVendor || p.AssignedVendor != vendorRef {
		return model.Pickup{}, corestore.ErrConflict
	}
	p.AssignedVendor = ""
	p.AssignmentExpiresAt = nil
	s.pickups[id] = p
	return clonePickup(p), nil
}

// ConfirmAssignment promotes the hold to ASSIGNED iff it is still live at now.
func (s *MemoryStore) ConfirmAssignment(_ context.Context, id, vendorRef string, now time.Time) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if !p.OfferOpen(vendorRef, now) {
		return model.Pickup{}, corestore.ErrConflict
	}
	p.Status = model.StatusAssigned
	p.AssignmentExpiresAt = nil
	s.pickups[id] = p
	return clonePickup(p), nil
}

// MarkNoVendor terminates the pickup with NO_VENDOR_AVAILABLE.
func (s *MemoryStore) MarkNoVendor(_ context.Context, id string) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if p.Status.TerminalForDispatch() {
		return model.Pickup{}, corestore.ErrConflict
	}
	p.Status = model.StatusNoVendorAvailable
	p.AssignedVendor = ""
	p.AssignmentExpiresAt = nil
	s.pickups[id] = p
	return clonePickup(p), nil
}

// Advance moves the pickup between post-assignment statuses.
func (s *MemoryStore) Advance(_ context.Context, id, vendorRef string, from, to model.Status) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if p.Status != from || p.AssignedVendor != vendorRef {
		return model.Pickup{}, corestore.ErrConflict
	}
	p.Status = to
	if to == model.StatusCompleted {
		now := time.Now()
		p.CompletedAt = &now
	}
	s.pickups[id] = p
	return clonePickup(p), nil
}

// Cancel terminates the pickup from REQUESTED or FINDING_VENDOR.
func (s *MemoryStore) Cancel(_ context.Context, id string) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if p.Status != model.StatusRequested && p.Status != model.StatusFindingVendor {
		return model.Pickup{}, corestore.ErrConflict
	}
	now := time.Now()
	p.Status = model.StatusCancelled
	p.CancelledAt = &now
	p.AssignedVendor = ""
	p.AssignmentExpiresAt = nil
	s.pickups[id] = p
	return clonePickup(p), nil
}

// ClearOffer resets a pre-assignment pickup back to REQUESTED.
func (s *MemoryStore) ClearOffer(_ context.Context, id string) (model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pickups[id]
	if !ok {
		return model.Pickup{}, corestore.ErrNotFound
	}
	if p.Status != model.StatusRequested && p.Status != model.StatusFindingVendor {
		return model.Pickup{}, corestore.ErrConflict
	}
	p.Status = model.StatusRequested
	p.AssignedVendor = ""
	p.AssignmentExpiresAt = nil
	s.pickups[id] = p
	return clonePickup(p), nil
}

// ListExpiredOffers returns FINDING_VENDOR pickups whose expiry lies before now.
func (s *MemoryStore) ListExpiredOffers(_ context.Context, now time.Time) ([]model.Pickup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Pickup
	for _, p := range s.pickups {
		if p.Status == model.StatusFindingVendor && p.AssignmentExpiresAt != nil && p.AssignmentExpiresAt.Before(now) {
			out = append(out, clonePickup(p))
		}
	}
	return out, nil
}

// Add appends a rejection record.
func (s *MemoryStore) Add(_ context.Context, rec model.RejectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections[rec.PickupID] = append(s.rejections[rec.PickupID], rec)
	return nil
}

// Rejected returns the vendors excluded for the pickup.
func (s *MemoryStore) Rejected(_ context.Context, pickupID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.rejections[pickupID]))
	for _, r := range s.rejections[pickupID] {
		out[r.VendorRef] = true
	}
	return out, nil
}
