package geo

import (
	"math"

	"github.com/scraphaul/dispatch/core/model"
)

// EarthRadiusKm is Earth's mean radius used for the Haversine calculation.
const EarthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance between two points in
// kilometers.
func HaversineKm(a, b model.GeoPoint) float64 {
	const degToRad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*degToRad)*math.Cos(b.Lat*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
