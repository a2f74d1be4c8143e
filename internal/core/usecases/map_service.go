package usecases

import (
	"context"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/ports"
	"github.com/samirrijal/geodash/internal/pkg/geospatial"
)

const (
	geolocationZoom = 13
	recordsZoom     = 10
	maxDensityZoom  = 18
)

// MapDefaults is the fallback viewport used when nothing better is known.
type MapDefaults struct {
	Center      domain.GeoPoint
	Zoom        int
	DensityZoom int
}

// MapService derives map viewports, overlays and density tiles.
type MapService struct {
	records  ports.RecordRepository
	defaults MapDefaults
}

// NewMapService creates a new MapService.
func NewMapService(records ports.RecordRepository, defaults MapDefaults) *MapService {
	return &MapService{records: records, defaults: defaults}
}

// Defaults returns the configured fallback viewport.
func (s *MapService) Defaults() MapDefaults { return s.defaults }

// View picks the initial viewport: a granted geolocation wins, then the
// centroid of the given records, then the configured default. A denied or
// unavailable geolocation falls through and never blocks rendering.
func (s *MapService) View(geo *domain.Geolocation, records []domain.Record) domain.MapView {
	if geo != nil && geo.Status == domain.GeolocationGranted && geo.Location != nil && geo.Location.Valid() {
		return domain.MapView{Center: *geo.Location, Zoom: geolocationZoom, Source: domain.ViewFromGeolocation}
	}
	if len(records) > 0 {
		pts := make([][2]float64, len(records))
		for i, r := range records {
			pts[i] = [2]float64{r.Location.Lat, r.Location.Lon}
		}
		if lat, lon, ok := geospatial.Centroid(pts); ok {
			return domain.MapView{Center: domain.GeoPoint{Lat: lat, Lon: lon}, Zoom: recordsZoom, Source: domain.ViewFromRecords}
		}
	}
	return domain.MapView{Center: s.defaults.Center, Zoom: s.defaults.Zoom, Source: domain.ViewFromDefault}
}

// ViewFor derives the viewport for a session. Without a usable geolocation
// the centroid covers every record the session can see.
func (s *MapService) ViewFor(ctx context.Context, sess *domain.Session) (domain.MapView, error) {
	if v := s.View(sess.Geolocation, nil); v.Source == domain.ViewFromGeolocation {
		return v, nil
	}
	var recs []domain.Record
	err := s.eachPage(ctx, sess.Scope(), domain.RecordFilter{Sort: domain.SortUpdated}, func(page []domain.Record) {
		recs = append(recs, page...)
	})
	if err != nil {
		return domain.MapView{}, fmt.Errorf("list records for view: %w", err)
	}
	return s.View(sess.Geolocation, recs), nil
}

// eachPage hands every record matching f to fn, one repository page at a
// time.
func (s *MapService) eachPage(ctx context.Context, scope domain.Scope, f domain.RecordFilter, fn func([]domain.Record)) error {
	f.Offset = 0
	f.Limit = maxPageSize
	for {
		recs, total, err := s.records.List(ctx, scope, f)
		if err != nil {
			return err
		}
		fn(recs)
		f.Offset += len(recs)
		if len(recs) < f.Limit || f.Offset >= total {
			return nil
		}
	}
}

// Overlay converts records to a GeoJSON FeatureCollection of points.
func (s *MapService) Overlay(records []domain.Record) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		f := geojson.NewFeature(orb.Point{r.Location.Lon, r.Location.Lat})
		f.ID = r.ID
		f.Properties["title"] = r.Title
		f.Properties["category"] = r.Category
		f.Properties["visibility"] = string(r.Visibility)
		f.Properties["url"] = "/records/" + r.ID
		if r.Distance != nil {
			f.Properties["distance"] = *r.Distance
		}
		fc.Append(f)
	}
	return fc
}

// OverlayFor loads visible records matching f and returns their overlay.
func (s *MapService) OverlayFor(ctx context.Context, scope domain.Scope, f domain.RecordFilter) (*geojson.FeatureCollection, error) {
	f, err := NormalizeFilter(f)
	if err != nil {
		return nil, err
	}
	recs, _, err := s.records.List(ctx, scope, f)
	if err != nil {
		return nil, fmt.Errorf("list records for overlay: %w", err)
	}
	return s.Overlay(recs), nil
}

// Density buckets records into slippy-map tiles at zoom and returns the
// non-empty cells, busiest first.
func (s *MapService) Density(records []domain.Record, zoom int) ([]domain.DensityCell, error) {
	if zoom < 0 || zoom > maxDensityZoom {
		return nil, fmt.Errorf("zoom must be 0-%d: %w", maxDensityZoom, domain.ErrInvalidInput)
	}
	counts := make(map[maptile.Tile]int)
	countTiles(counts, records, maptile.Zoom(zoom))
	return densityCells(counts, zoom), nil
}

func countTiles(counts map[maptile.Tile]int, records []domain.Record, z maptile.Zoom) {
	for _, r := range records {
		counts[maptile.At(orb.Point{r.Location.Lon, r.Location.Lat}, z)]++
	}
}

func densityCells(counts map[maptile.Tile]int, zoom int) []domain.DensityCell {
	cells := make([]domain.DensityCell, 0, len(counts))
	for t, n := range counts {
		c := t.Bound().Center()
		cells = append(cells, domain.DensityCell{
			Z:      zoom,
			X:      t.X,
			Y:      t.Y,
			Count:  n,
			Center: domain.GeoPoint{Lat: c.Lat(), Lon: c.Lon()},
		})
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Count != cells[j].Count {
			return cells[i].Count > cells[j].Count
		}
		if cells[i].X != cells[j].X {
			return cells[i].X < cells[j].X
		}
		return cells[i].Y < cells[j].Y
	})
	return cells
}

// DensityFor aggregates every visible record matching f, walking all pages.
// zoom < 0 selects the configured density zoom.
func (s *MapService) DensityFor(ctx context.Context, scope domain.Scope, f domain.RecordFilter, zoom int) ([]domain.DensityCell, error) {
	if zoom < 0 {
		zoom = s.defaults.DensityZoom
	}
	if zoom > maxDensityZoom {
		return nil, fmt.Errorf("zoom must be 0-%d: %w", maxDensityZoom, domain.ErrInvalidInput)
	}
	f, err := NormalizeFilter(f)
	if err != nil {
		return nil, err
	}
	z := maptile.Zoom(zoom)
	counts := make(map[maptile.Tile]int)
	err = s.eachPage(ctx, scope, f, func(page []domain.Record) {
		countTiles(counts, page, z)
	})
	if err != nil {
		return nil, fmt.Errorf("list records for density: %w", err)
	}
	return densityCells(counts, zoom), nil
}
