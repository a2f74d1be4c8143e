package geospatial

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	// Bilbao to San Sebastián is roughly 77 km.
	d := Haversine(43.263, -2.935, 43.318, -1.981)
	if d < 76000 || d > 79000 {
		t.Errorf("Haversine = %.0f m, want ~77 km", d)
	}
	if Haversine(10, 10, 10, 10) != 0 {
		t.Error("distance to self should be zero")
	}
}

func TestCentroid(t *testing.T) {
	if _, _, ok := Centroid(nil); ok {
		t.Error("empty input should report !ok")
	}

	lat, lon, ok := Centroid([][2]float64{{10, 20}})
	if !ok || math.Abs(lat-10) > 1e-9 || math.Abs(lon-20) > 1e-9 {
		t.Errorf("single point centroid = (%v, %v)", lat, lon)
	}

	// Points straddling the antimeridian average to 180, not 0.
	_, lon, _ = Centroid([][2]float64{{0, 179}, {0, -179}})
	if math.Abs(math.Abs(lon)-180) > 1e-6 {
		t.Errorf("antimeridian centroid lon = %v, want ±180", lon)
	}
}
