package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/usecases"
)

var defaults = usecases.MapDefaults{Center: domain.GeoPoint{Lat: 40, Lon: -3}, Zoom: 5, DensityZoom: 8}

func recordsAt(pts ...domain.GeoPoint) []domain.Record {
	out := make([]domain.Record, len(pts))
	for i, p := range pts {
		out[i] = domain.Record{ID: string(rune('a' + i)), Title: "r", Location: p}
	}
	return out
}

func TestMapService_View(t *testing.T) {
	svc := usecases.NewMapService(&mockRecordRepo{}, defaults)
	here := domain.GeoPoint{Lat: 43.26, Lon: -2.93}
	recs := recordsAt(domain.GeoPoint{Lat: 10, Lon: 10}, domain.GeoPoint{Lat: 12, Lon: 10})

	granted := &domain.Geolocation{Status: domain.GeolocationGranted, Location: &here}
	if v := svc.View(granted, recs); v.Source != domain.ViewFromGeolocation || v.Center != here || v.Zoom != 13 {
		t.Errorf("granted view = %+v", v)
	}

	denied := &domain.Geolocation{Status: domain.GeolocationDenied, Reason: "user said no"}
	v := svc.View(denied, recs)
	if v.Source != domain.ViewFromRecords || math.Abs(v.Center.Lat-11) > 0.01 || v.Zoom != 10 {
		t.Errorf("denied with records = %+v", v)
	}

	// denial with nothing to show still renders the configured view
	v = svc.View(denied, nil)
	if v.Source != domain.ViewFromDefault || v.Center != defaults.Center || v.Zoom != defaults.Zoom {
		t.Errorf("denied without records = %+v", v)
	}

	if v := svc.View(nil, nil); v.Source != domain.ViewFromDefault {
		t.Errorf("no geolocation = %+v", v)
	}
}

func TestMapService_ViewFor(t *testing.T) {
	repo := &mockRecordRepo{
		listFn: func(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error) {
			return nil, 0, errors.New("db down")
		},
	}
	svc := usecases.NewMapService(repo, defaults)
	if _, err := svc.ViewFor(context.Background(), &domain.Session{Role: domain.RoleViewer}); err == nil {
		t.Error("expected repository error")
	}
}

func TestMapService_Overlay(t *testing.T) {
	svc := usecases.NewMapService(&mockRecordRepo{}, defaults)
	recs := recordsAt(domain.GeoPoint{Lat: 43.26, Lon: -2.93})
	recs[0].Category = "parks"

	fc := svc.Overlay(recs)
	if len(fc.Features) != 1 {
		t.Fatalf("features = %d", len(fc.Features))
	}
	f := fc.Features[0]
	pt, ok := f.Geometry.(orb.Point)
	if !ok || pt.Lon() != -2.93 || pt.Lat() != 43.26 {
		t.Errorf("point = %v (GeoJSON is lon,lat)", pt)
	}
	if f.Properties["category"] != "parks" || f.Properties["url"] != "/records/a" {
		t.Errorf("properties = %v", f.Properties)
	}

	empty := svc.Overlay(nil)
	data, err := empty.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Type != "FeatureCollection" || doc.Features == nil || len(doc.Features) != 0 {
		t.Errorf("empty overlay = %s", data)
	}
}

func TestMapService_Density(t *testing.T) {
	svc := usecases.NewMapService(&mockRecordRepo{}, defaults)
	recs := recordsAt(
		domain.GeoPoint{Lat: 43.2600, Lon: -2.9300},
		domain.GeoPoint{Lat: 43.2601, Lon: -2.9301},
		domain.GeoPoint{Lat: -33.86, Lon: 151.2},
	)

	cells, err := svc.Density(recs, 10)
	if err != nil {
		t.Fatalf("Density: %v", err)
	}
	if len(cells) != 2 {
		t.Fatalf("cells = %d, want 2", len(cells))
	}
	if cells[0].Count != 2 || cells[1].Count != 1 {
		t.Errorf("cells not ordered by count: %+v", cells)
	}
	if math.Abs(cells[0].Center.Lat-43.26) > 0.5 {
		t.Errorf("cell centre %v far from its points", cells[0].Center)
	}

	if _, err := svc.Density(recs, 25); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("zoom 25: got %v", err)
	}
}

// pagedRepo serves n records, honouring offset and limit. The first 400 sit
// in Bilbao and the rest in Sydney.
func pagedRepo(n int, calls *int) *mockRecordRepo {
	all := make([]domain.Record, n)
	for i := range all {
		p := domain.GeoPoint{Lat: 43.26, Lon: -2.93}
		if i >= 400 {
			p = domain.GeoPoint{Lat: -33.86, Lon: 151.2}
		}
		all[i] = domain.Record{ID: string(rune(0x4e00 + i)), Title: "r", Location: p}
	}
	return &mockRecordRepo{
		listFn: func(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error) {
			*calls++
			if f.Limit <= 0 || f.Limit > 200 {
				return nil, 0, errors.New("unbounded page")
			}
			end := min(f.Offset+f.Limit, n)
			if f.Offset >= end {
				return nil, n, nil
			}
			return all[f.Offset:end], n, nil
		},
	}
}

func TestMapService_DensityForWalksEveryPage(t *testing.T) {
	var calls int
	svc := usecases.NewMapService(pagedRepo(500, &calls), defaults)

	cells, err := svc.DensityFor(context.Background(), editorScope, domain.RecordFilter{}, 10)
	if err != nil {
		t.Fatalf("DensityFor: %v", err)
	}
	total := 0
	for _, c := range cells {
		total += c.Count
	}
	if total != 500 {
		t.Errorf("cells cover %d records, want 500", total)
	}
	if len(cells) != 2 || cells[0].Count != 400 || cells[1].Count != 100 {
		t.Errorf("cells = %+v", cells)
	}
	if calls != 3 {
		t.Errorf("list calls = %d, want 3", calls)
	}
}

func TestMapService_ViewForUsesEveryRecord(t *testing.T) {
	var calls int
	svc := usecases.NewMapService(pagedRepo(500, &calls), defaults)

	v, err := svc.ViewFor(context.Background(), &domain.Session{Role: domain.RoleViewer})
	if err != nil {
		t.Fatalf("ViewFor: %v", err)
	}
	// The first two pages are all Bilbao; only the last one moves the centre.
	if v.Source != domain.ViewFromRecords || calls != 3 {
		t.Errorf("view = %+v after %d calls", v, calls)
	}
	if math.Abs(v.Center.Lat-43.26) < 1 && math.Abs(v.Center.Lon+2.93) < 1 {
		t.Errorf("centre %v ignores records past the first page", v.Center)
	}

	calls = 0
	here := domain.GeoPoint{Lat: 1, Lon: 2}
	sess := &domain.Session{Role: domain.RoleViewer, Geolocation: &domain.Geolocation{Status: domain.GeolocationGranted, Location: &here}}
	if v, err := svc.ViewFor(context.Background(), sess); err != nil || v.Center != here || calls != 0 {
		t.Errorf("granted geolocation: view=%+v err=%v calls=%d", v, err, calls)
	}
}
