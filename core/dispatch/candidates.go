package dispatch

import (
	"sort"

	"github.com/scraphaul/dispatch/core/geo"
	"github.com/scraphaul/dispatch/core/model"
)

// eligibleCandidates filters a fresh directory snapshot for one pickup and
// orders it nearest first. Unavailable vendors and vendors already present in
// the rejection ledger are excluded. Distance ties are broken by vendorRef so
// the ordering is deterministic; without a pickup geolocation the ordering
// degrades to pure vendorRef order.
func eligibleCandidates(cands []model.VendorCandidate, rejected map[string]bool, loc *model.GeoPoint) []model.VendorCandidate {
	out := make([]model.VendorCandidate, 0, len(cands))
	for _, c := range cands {
		if !c.Available || rejected[c.VendorRef] {
			continue
		}
		out = append(out, c)
	}
	dist := func(c model.VendorCandidate) float64 {
		if loc == nil {
			return 0
		}
		return geo.HaversineKm(*loc, c.Location)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := dist(out[i]), dist(out[j])
		if di != dj {
			return di < dj
		}
		return out[i].VendorRef < out[j].VendorRef
	})
	return out
}
