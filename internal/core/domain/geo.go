package domain

import "time"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies inside the WGS 84 coordinate range.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether p falls inside the box (edges inclusive).
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// GeolocationStatus is the outcome of a browser geolocation request.
type GeolocationStatus string

const (
	GeolocationGranted     GeolocationStatus = "granted"
	GeolocationDenied      GeolocationStatus = "denied"
	GeolocationUnavailable GeolocationStatus = "unavailable"
)

// Geolocation is the last position (or refusal) reported by the browser.
type Geolocation struct {
	Status     GeolocationStatus `json:"status"`
	Location   *GeoPoint         `json:"location,omitempty"`
	Accuracy   float64           `json:"accuracy,omitempty"` // meters
	Reason     string            `json:"reason,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
}

// MapViewSource says where a map view's centre came from.
type MapViewSource string

const (
	ViewFromGeolocation MapViewSource = "geolocation"
	ViewFromRecords     MapViewSource = "records"
	ViewFromDefault     MapViewSource = "default"
)

// MapView is the initial viewport handed to the map widget.
type MapView struct {
	Center GeoPoint      `json:"center"`
	Zoom   int           `json:"zoom"`
	Source MapViewSource `json:"source"`
}

// DensityCell is the number of records inside one slippy-map tile.
type DensityCell struct {
	Z      int      `json:"z"`
	X      uint32   `json:"x"`
	Y      uint32   `json:"y"`
	Count  int      `json:"count"`
	Center GeoPoint `json:"center"`
}
