package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/geodash/internal/pkg/metrics"
)

// SetupRoutes registers the HTML pages and the REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 300 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	if o := deps.Options.AllowOrigins; o != "" && o != "*" {
		app.Use("/v1", cors.New(cors.Config{AllowOrigins: o, AllowCredentials: true}))
	}

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	app.Use(DeprecationMiddleware(deprecatedRoutes))

	// Health & readiness run without the request timeout
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// Sessions and cross-site protection for everything below
	app.Use(SessionMiddleware(deps))
	app.Use(SameOriginMiddleware())

	loginMax := deps.Options.LoginRateLimit
	if loginMax <= 0 {
		loginMax = 10
	}
	loginLimiter := limiter.New(limiter.Config{
		Max:                    loginMax,
		Expiration:             1 * time.Minute,
		SkipSuccessfulRequests: true,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "login:" + c.IP()
		},
		LimitReached: loginLimitReached,
	})

	page := RequirePageSession()
	authed := RequireAPISession()
	limit := deps.requestTimeout()
	to := func(h fiber.Handler) fiber.Handler { return timeout.NewWithContext(h, limit) }

	// HTML pages
	app.Get("/login", LoginPageHandler(deps))
	app.Post("/login", loginLimiter, LoginFormHandler(deps))
	app.Post("/logout", LogoutFormHandler(deps))
	app.Get("/register", RegisterPageHandler(deps))
	app.Post("/register", RegisterFormHandler(deps))
	app.Get("/", page, to(DashboardHandler(deps)))
	app.Get("/records/new", page, NewRecordPageHandler(deps))
	app.Post("/records", page, to(CreateRecordFormHandler(deps)))
	app.Get("/records/:id", page, to(RecordPageHandler(deps)))
	app.Get("/records/:id/edit", page, to(EditRecordPageHandler(deps)))
	app.Post("/records/:id", page, to(UpdateRecordFormHandler(deps)))
	app.Post("/records/:id/delete", page, to(DeleteRecordFormHandler(deps)))
	app.Post("/records/:id/media", page, to(UploadMediaFormHandler(deps)))
	app.Post("/records/:id/cover", page, to(SetCoverFormHandler(deps)))

	// REST API v1
	v1 := app.Group("/v1")
	v1.Post("/auth/login", loginLimiter, LoginHandler(deps))
	v1.Post("/auth/logout", LogoutHandler(deps))
	v1.Post("/auth/register", RegisterHandler(deps))
	v1.Get("/auth/me", authed, MeHandler(deps))
	v1.Get("/me", authed, MeHandler(deps)) // deprecated alias
	v1.Post("/auth/password", authed, ChangePasswordHandler(deps))

	v1.Get("/records", authed, to(ListRecordsHandler(deps)))
	v1.Post("/records", authed, to(CreateRecordHandler(deps)))
	v1.Get("/records/nearby", authed, to(NearbyRecordsHandler(deps)))
	v1.Get("/records/export.csv", authed, to(ExportRecordsHandler(deps)))
	v1.Post("/records/import", authed, to(ImportRecordsHandler(deps)))
	v1.Get("/records/:id", authed, to(GetRecordHandler(deps)))
	v1.Put("/records/:id", authed, to(UpdateRecordHandler(deps)))
	v1.Delete("/records/:id", authed, to(DeleteRecordHandler(deps)))
	v1.Put("/records/:id/cover", authed, to(SetCoverHandler(deps)))
	v1.Get("/records/:id/media", authed, to(ListMediaHandler(deps)))
	v1.Post("/records/:id/media", authed, to(UploadMediaHandler(deps)))
	v1.Post("/records/:id/image", authed, to(UploadMediaHandler(deps))) // deprecated alias

	v1.Get("/media/:id", authed, to(GetMediaHandler(deps)))
	v1.Get("/media/:id/content", authed, to(MediaContentHandler(deps)))
	v1.Delete("/media/:id", authed, to(DeleteMediaHandler(deps)))

	v1.Get("/charts", authed, to(ChartsHandler(deps)))
	v1.Get("/map/view", authed, to(MapViewHandler(deps)))
	v1.Get("/map/overlay", authed, to(MapOverlayHandler(deps)))
	v1.Get("/map/density", authed, to(MapDensityHandler(deps)))
	v1.Post("/geolocation", authed, GeolocationHandler(deps))
	v1.Delete("/geolocation", authed, ClearGeolocationHandler(deps))

	// GraphQL
	app.Post("/graphql", authed, to(GraphQLHandler(deps)))

	// WebSocket
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if sessionFrom(c) == nil {
			return errUnauthorized(c, "sign in required")
		}
		return c.Next()
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps.NATS)))
}
