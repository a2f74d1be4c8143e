package http

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/internal/core/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// exportLimit caps how many rows a CSV export walks through.
const exportLimit = 10000

// bindJSON parses the request body into dst and validates its tags.
func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("malformed body: %w", domain.ErrInvalidInput)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", describe(err), domain.ErrInvalidInput)
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

// parseFilter reads listing parameters shared by the JSON API, the map
// endpoints and the dashboard page.
func parseFilter(c *fiber.Ctx) (domain.RecordFilter, error) {
	f := domain.RecordFilter{
		Category:  c.Query("category"),
		Query:     c.Query("q"),
		OwnerOnly: c.QueryBool("mine", false),
		Sort:      domain.RecordSort(c.Query("sort")),
		Offset:    c.QueryInt("offset", 0),
		Limit:     c.QueryInt("limit", 0),
	}
	if len(f.Query) > 200 {
		return f, fmt.Errorf("query too long (max 200 characters): %w", domain.ErrInvalidInput)
	}
	if raw := c.Query("bbox"); raw != "" {
		b, err := parseBBox(raw)
		if err != nil {
			return f, err
		}
		f.Bounds = b
	}
	return f, nil
}

// parseBBox reads "minLon,minLat,maxLon,maxLat" (GeoJSON order, as Leaflet's
// toBBoxString produces).
func parseBBox(raw string) (*domain.Bounds, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox must be minLon,minLat,maxLon,maxLat: %w", domain.ErrInvalidInput)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox value %q: %w", p, domain.ErrInvalidInput)
		}
		v[i] = f
	}
	return &domain.Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}, nil
}

// allRecords walks every page of a filtered listing, up to exportLimit rows.
func allRecords(ctx context.Context, deps *Dependencies, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, error) {
	f.Offset = 0
	f.Limit = 200
	var out []domain.Record
	for len(out) < exportLimit {
		page, err := deps.Records.List(ctx, scope, f)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if len(page.Records) < page.Limit || f.Offset+page.Limit >= page.Total {
			break
		}
		f.Offset += page.Limit
	}
	if out == nil {
		out = []domain.Record{}
	}
	return out, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
