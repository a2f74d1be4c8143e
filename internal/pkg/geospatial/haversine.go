package geospatial

import "math"

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// Centroid returns the spherical mean of the given points. ok is false when
// pts is empty.
func Centroid(pts [][2]float64) (lat, lon float64, ok bool) {
	if len(pts) == 0 {
		return 0, 0, false
	}
	var x, y, z float64
	for _, p := range pts {
		la, lo := toRad(p[0]), toRad(p[1])
		x += math.Cos(la) * math.Cos(lo)
		y += math.Cos(la) * math.Sin(lo)
		z += math.Sin(la)
	}
	n := float64(len(pts))
	x, y, z = x/n, y/n, z/n

	lon = math.Atan2(y, x) * 180 / math.Pi
	lat = math.Atan2(z, math.Sqrt(x*x+y*y)) * 180 / math.Pi
	return lat, lon, true
}
