package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/ports"
	"github.com/samirrijal/geodash/internal/pkg/metrics"
	"github.com/samirrijal/geodash/internal/pkg/telemetry"
)

const (
	chartGenKey    = "charts:gen"
	chartGenTTL    = 24 * 60 * 60
	maxBarCategory = 10
)

// ChartService aggregates visible records into render-ready charts.
type ChartService struct {
	records ports.RecordRepository
	cache   ports.CacheService
	days    int
	ttl     int
	now     func() time.Time
}

// NewChartService creates a new ChartService. cache may be nil.
func NewChartService(records ports.RecordRepository, cache ports.CacheService, days, ttlSeconds int) *ChartService {
	if days <= 0 {
		days = 30
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	return &ChartService{records: records, cache: cache, days: days, ttl: ttlSeconds, now: time.Now}
}

// Charts returns the category, activity and visibility charts for scope.
func (s *ChartService) Charts(ctx context.Context, scope domain.Scope) ([]domain.Chart, error) {
	cacheKey := fmt.Sprintf("charts:%s:%s:%s", s.generation(ctx), scope.Role, scope.PrincipalID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var charts []domain.Chart
			if err := json.Unmarshal(data, &charts); err == nil {
				metrics.CacheHits.WithLabelValues("charts").Inc()
				return charts, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("charts").Inc()
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanChartCompute)
	defer span.End()

	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(s.days - 1))
	stats, err := s.records.Stats(ctx, scope, since)
	if err != nil {
		return nil, fmt.Errorf("record stats: %w", err)
	}

	charts := []domain.Chart{
		categoryChart(stats.ByCategory),
		activityChart(stats.CreatedByDay, since, s.days),
		visibilityChart(stats),
	}

	if s.cache != nil {
		if data, err := json.Marshal(charts); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.ttl)
		}
	}
	return charts, nil
}

// RecordsChanged rotates the cache generation so every cached chart set is
// recomputed on next read.
func (s *ChartService) RecordsChanged(ctx context.Context) {
	if s.cache == nil {
		return
	}
	gen := strconv.FormatInt(s.now().UnixNano(), 36)
	if err := s.cache.Set(ctx, chartGenKey, []byte(gen), chartGenTTL); err != nil {
		slog.WarnContext(ctx, "chart cache invalidation failed", "error", err)
	}
}

func (s *ChartService) generation(ctx context.Context) string {
	if s.cache == nil {
		return "0"
	}
	if data, err := s.cache.Get(ctx, chartGenKey); err == nil && len(data) > 0 {
		return string(data)
	}
	return "0"
}

func categoryChart(rows []domain.CategoryCount) domain.Chart {
	sorted := append([]domain.CategoryCount(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Category < sorted[j].Category
	})

	labels := make([]string, 0, maxBarCategory+1)
	data := make([]float64, 0, maxBarCategory+1)
	other := 0
	for i, r := range sorted {
		if i >= maxBarCategory {
			other += r.Count
			continue
		}
		labels = append(labels, r.Category)
		data = append(data, float64(r.Count))
	}
	if other > 0 {
		labels = append(labels, "other")
		data = append(data, float64(other))
	}
	return domain.Chart{
		ID:       "by-category",
		Kind:     domain.ChartBar,
		Title:    "Records by category",
		Labels:   labels,
		Datasets: []domain.Dataset{{Label: "records", Data: data}},
	}
}

// activityChart zero-fills the days with no records.
func activityChart(rows []domain.DayCount, since time.Time, days int) domain.Chart {
	byDay := make(map[string]int, len(rows))
	for _, r := range rows {
		byDay[r.Day] = r.Count
	}
	labels := make([]string, days)
	data := make([]float64, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i).Format("2006-01-02")
		labels[i] = day
		data[i] = float64(byDay[day])
	}
	return domain.Chart{
		ID:       "created-per-day",
		Kind:     domain.ChartLine,
		Title:    fmt.Sprintf("Records created, last %d days", days),
		Labels:   labels,
		Datasets: []domain.Dataset{{Label: "created", Data: data}},
	}
}

func visibilityChart(st *domain.RecordStats) domain.Chart {
	return domain.Chart{
		ID:       "visibility",
		Kind:     domain.ChartPie,
		Title:    "Visibility",
		Labels:   []string{string(domain.VisibilityPrivate), string(domain.VisibilityShared)},
		Datasets: []domain.Dataset{{Label: "records", Data: []float64{float64(st.Private), float64(st.Shared)}}},
	}
}
