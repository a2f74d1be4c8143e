package usecases_test

import (
	"context"
	"testing"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/usecases"
)

func TestChartService_Charts(t *testing.T) {
	var since time.Time
	repo := &mockRecordRepo{
		statsFn: func(ctx context.Context, scope domain.Scope, s time.Time) (*domain.RecordStats, error) {
			since = s
			today := time.Now().UTC().Format("2006-01-02")
			return &domain.RecordStats{
				Total: 5, Shared: 2, Private: 3,
				ByCategory:   []domain.CategoryCount{{Category: "b", Count: 1}, {Category: "a", Count: 4}},
				CreatedByDay: []domain.DayCount{{Day: today, Count: 5}},
			}, nil
		},
	}
	svc := usecases.NewChartService(repo, nil, 7, 60)

	charts, err := svc.Charts(context.Background(), editorScope)
	if err != nil {
		t.Fatalf("Charts: %v", err)
	}
	if len(charts) != 3 {
		t.Fatalf("charts = %d, want 3", len(charts))
	}

	bar := charts[0]
	if bar.Kind != domain.ChartBar || bar.Labels[0] != "a" || bar.Datasets[0].Data[0] != 4 {
		t.Errorf("bar chart not sorted by count: %+v", bar)
	}

	line := charts[1]
	if len(line.Labels) != 7 || len(line.Datasets[0].Data) != 7 {
		t.Fatalf("line chart should have 7 zero-filled days, got %d", len(line.Labels))
	}
	if line.Datasets[0].Data[6] != 5 || line.Datasets[0].Data[0] != 0 {
		t.Errorf("line data = %v", line.Datasets[0].Data)
	}
	if line.Labels[0] != since.Format("2006-01-02") {
		t.Errorf("first label %s, since %s", line.Labels[0], since)
	}

	pie := charts[2]
	if pie.Kind != domain.ChartPie || pie.Datasets[0].Data[0] != 3 || pie.Datasets[0].Data[1] != 2 {
		t.Errorf("pie = %+v", pie)
	}
}

func TestChartService_EmptyStats(t *testing.T) {
	svc := usecases.NewChartService(&mockRecordRepo{}, nil, 30, 60)
	charts, err := svc.Charts(context.Background(), viewerScope)
	if err != nil {
		t.Fatalf("Charts: %v", err)
	}
	for _, c := range charts {
		if !c.Empty() {
			t.Errorf("chart %s should be empty", c.ID)
		}
	}
}

func TestChartService_CacheAndInvalidation(t *testing.T) {
	calls := 0
	repo := &mockRecordRepo{
		statsFn: func(ctx context.Context, scope domain.Scope, s time.Time) (*domain.RecordStats, error) {
			calls++
			return &domain.RecordStats{Total: calls}, nil
		},
	}
	cache := newMockCache()
	svc := usecases.NewChartService(repo, cache, 3, 60)
	ctx := context.Background()

	svc.Charts(ctx, editorScope)
	svc.Charts(ctx, editorScope)
	if calls != 1 {
		t.Errorf("second read should hit cache, stats calls = %d", calls)
	}

	svc.Charts(ctx, otherEditor)
	if calls != 2 {
		t.Errorf("cache must be per principal, stats calls = %d", calls)
	}

	svc.RecordsChanged(ctx)
	svc.Charts(ctx, editorScope)
	if calls != 3 {
		t.Errorf("write should invalidate charts, stats calls = %d", calls)
	}
}
