package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Everything behind a session is private; handlers may set their own value.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != fiber.MethodGet {
			return err
		}

		// Don't override if already set
		if existing := c.GetRespHeader(fiber.HeaderCacheControl); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "no-cache"

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/docs" || path == "/docs/openapi.yaml":
			ttl = "public, max-age=3600"

		case path == "/v1/charts":
			ttl = "private, max-age=60" // matches the server-side chart cache

		case strings.HasPrefix(path, "/v1/"):
			ttl = "private, no-cache" // per-user data, revalidate with ETag

		default:
			ttl = "no-store" // HTML pages
		}

		c.Set(fiber.HeaderCacheControl, ttl)
		return err
	}
}
