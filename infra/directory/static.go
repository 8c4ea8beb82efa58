// Package directory provides vendor registries for the dispatch engine:
// a static in-memory registry and an MQTT presence listener that tracks
// vendors through periodic heartbeats.
package directory

import (
	"context"
	"sync"

	"github.com/scraphaul/dispatch/core/model"
	corestore "github.com/scraphaul/dispatch/core/store"
)

// StaticDirectory is an in-memory vendor registry. Entries live until
// removed; availability is whatever the last upsert said.
type StaticDirectory struct {
	mu      sync.RWMutex
	vendors map[string]model.VendorCandidate
}

var _ corestore.VendorDirectory = (*StaticDirectory)(nil)

func NewStaticDirectory(vendors ...model.VendorCandidate) *StaticDirectory {
	d := &StaticDirectory{vendors: make(map[string]model.VendorCandidate)}
	for _, v := range vendors {
		d.vendors[v.VendorRef] = v
	}
	return d
}

// Upsert registers or refreshes a vendor.
func (d *StaticDirectory) Upsert(v model.VendorCandidate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vendors[v.VendorRef] = v
}

// Remove drops a vendor from the registry.
func (d *StaticDirectory) Remove(vendorRef string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.vendors, vendorRef)
}

// Candidates returns a snapshot of the registry.
func (d *StaticDirectory) Candidates(_ context.Context) ([]model.VendorCandidate, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.VendorCandidate, 0, len(d.vendors))
	for _, v := range d.vendors {
		out = append(out, v)
	}
	return out, nil
}
