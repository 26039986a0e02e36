package geo

import "math"

// EarthRadiusKm is Earth's radius in kilometers for Haversine calculation.
const EarthRadiusKm = 6371.0

// HaversineKm calculates the great-circle distance between two points on
// Earth in kilometers using the Haversine formula.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Interpolate returns the point a fraction t of the way from (fromLat,
// fromLng) to (toLat, toLng). t is clamped to [0,1]; at t=1 the result is
// exactly the destination. Linear in lat/lng, which is what the tracking
// map expects at city scale.
func Interpolate(fromLat, fromLng, toLat, toLng, t float64) (lat, lng float64) {
	if t <= 0 {
		return fromLat, fromLng
	}
	if t >= 1 {
		return toLat, toLng
	}
	return fromLat + (toLat-fromLat)*t, fromLng + (toLng-fromLng)*t
}
