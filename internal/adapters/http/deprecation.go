package http

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DeprecatedRoute marks an endpoint as deprecated with sunset date.
type DeprecatedRoute struct {
	Path        string    // Handler path pattern
	SunsetDate  time.Time // Date when endpoint will be removed
	Alternative string    // Recommended alternative endpoint (optional)
}

// deprecatedRoutes are the aliases still served for older clients.
var deprecatedRoutes = []DeprecatedRoute{
	{Path: "/v1/me", SunsetDate: time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC), Alternative: "/v1/auth/me"},
	{Path: "/v1/records/:id/image", SunsetDate: time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC), Alternative: "/v1/records/:id/media"},
}

// DeprecationMiddleware adds Deprecation, Sunset, and Link headers to deprecated endpoints.
// This helps clients migrate gracefully to newer API versions.
func DeprecationMiddleware(deprecated []DeprecatedRoute) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, d := range deprecated {
			if !matchPattern(c.Path(), d.Path) {
				continue
			}
			// RFC 8594 Deprecation header
			c.Set("Deprecation", "true")

			// RFC 8594 Sunset header (HTTP-Date format)
			c.Set("Sunset", d.SunsetDate.UTC().Format(time.RFC1123))

			// RFC 8288 Link header with deprecation info
			if d.Alternative != "" {
				c.Set("Link", fmt.Sprintf(`<%s>; rel="successor-version"`, d.Alternative))
			}

			days := time.Until(d.SunsetDate).Hours() / 24
			c.Set("Warning", fmt.Sprintf(`299 - "Deprecated API, will sunset in %.0f days"`, days))
			break
		}

		return c.Next()
	}
}

// matchPattern matches a path against a route pattern where ":name"
// segments match any single non-empty segment.
func matchPattern(path, pattern string) bool {
	if path == pattern {
		return true
	}
	ps := strings.Split(strings.Trim(path, "/"), "/")
	qs := strings.Split(strings.Trim(pattern, "/"), "/")
	if len(ps) != len(qs) {
		return false
	}
	for i := range qs {
		if strings.HasPrefix(qs[i], ":") {
			if ps[i] == "" {
				return false
			}
			continue
		}
		if ps[i] != qs[i] {
			return false
		}
	}
	return true
}
