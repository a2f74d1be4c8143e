package http

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/samirrijal/geodash/internal/core/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

// view is the data every page template receives.
type view struct {
	Title       string
	Session     *domain.Session
	Error       string
	Notice      string
	RequestID   string
	TileURL     string
	Attribution string
	Page        any
}

var templateFuncs = template.FuncMap{
	"json": func(v any) (template.JS, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return template.JS(b), nil
	},
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	},
	"fmtCoord": func(v float64) string { return fmt.Sprintf("%.5f", v) },
	"join":     strings.Join,
	"deref": func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	},
	"isAdmin":  func(s *domain.Session) bool { return s != nil && s.Role == domain.RoleAdmin },
}

// pages maps a page name to its template set (layout + page).
var pages = mustParsePages("login", "register", "dashboard", "record_form", "record_detail", "error")

func mustParsePages(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		t := template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
		out[name] = t
	}
	return out
}

// render executes a page into the response. Pages are per-request and
// never cached by browsers or proxies.
func render(c *fiber.Ctx, deps *Dependencies, status int, page string, v view) error {
	t, ok := pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	v.Session = sessionFrom(c)
	v.RequestID, _ = c.Locals("requestid").(string)
	if deps != nil {
		v.TileURL = deps.Options.TileURL
		v.Attribution = deps.Options.Attribution
	}
	if v.TileURL == "" {
		v.TileURL = "https://tile.openstreetmap.org/{z}/{x}/{y}.png"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		LoggerFromCtx(c.UserContext()).Error("render page", "page", page, "error", err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(status).Send(buf.Bytes())
}

// renderError shows the error page with a plain message.
func renderError(c *fiber.Ctx, status int, msg string) error {
	return render(c, nil, status, "error", view{
		Title: fmt.Sprintf("%d", status),
		Error: msg,
		Page:  fiber.Map{"Status": status},
	})
}

// pageError maps a domain error to the error page.
func pageError(c *fiber.Ctx, err error) error {
	status, _, msg := classify(err)
	if status >= fiber.StatusInternalServerError {
		LoggerFromCtx(c.UserContext()).Error("page failed", "path", c.Path(), "error", err)
		msg = "Something went wrong. Please try again."
	}
	return renderError(c, status, msg)
}

// wantsHTML reports whether the caller is a browser page rather than an
// API client.
func wantsHTML(c *fiber.Ctx) bool {
	p := c.Path()
	if strings.HasPrefix(p, "/v1/") || p == "/graphql" || p == "/ws" || p == "/metrics" {
		return false
	}
	return true
}

// ErrorHandler is the fiber.Config error handler: unmatched routes and
// framework errors become JSON for the API and an error page for browsers.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal error"
	if fe, ok := err.(*fiber.Error); ok {
		status, msg = fe.Code, fe.Message
	} else {
		LoggerFromCtx(c.UserContext()).Error("unhandled error", "path", c.Path(), "error", err)
	}
	if wantsHTML(c) {
		return renderError(c, status, msg)
	}
	code := strings.ReplaceAll(strings.ToLower(utils.StatusMessage(status)), " ", "_")
	return newError(c, status, code, msg)
}
