package http

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/api"
)

const swaggerUIPage = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>%s</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#swagger-ui',
      deepLinking: true,
      withCredentials: true,
    });
  </script>
</body>
</html>`

// SetupDocs serves Swagger UI at /docs and the API description at
// /docs/openapi.yaml and /docs/openapi.json.
func SetupDocs(app *fiber.App) {
	doc, err := openapi3.NewLoader().LoadFromData(api.OpenAPI)
	if err != nil {
		slog.Error("openapi document unreadable, /docs disabled", "error", err)
		return
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		slog.Error("openapi document not encodable", "error", err)
		return
	}
	page := fmt.Sprintf(swaggerUIPage, html.EscapeString(doc.Info.Title+" "+doc.Info.Version))

	app.Get("/docs", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(page)
	})
	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(api.OpenAPI)
	})
	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(asJSON)
	})
}
