package http

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/internal/core/domain"
)

const sessionLocal = "session"

// hostPrefix is the cookie prefix browsers lock to secure, host-only cookies.
const hostPrefix = "__Host-"

func (d *Dependencies) sessionCookieName() string {
	name := d.cookieName()
	if d.Options.SecureCookies && !strings.HasPrefix(name, hostPrefix) {
		return hostPrefix + name
	}
	return name
}

func (d *Dependencies) setSessionCookie(c *fiber.Ctx, sess *domain.Session) {
	c.Cookie(&fiber.Cookie{
		Name:     d.sessionCookieName(),
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		Secure:   d.Options.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (d *Dependencies) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     d.sessionCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   d.Options.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SessionMiddleware resolves the session cookie, if any, and stores the
// session in Locals. Sliding expiry refreshes re-issue the cookie. Unknown or
// expired tokens clear the cookie but do not fail the request.
func SessionMiddleware(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(deps.sessionCookieName())
		if token == "" {
			return c.Next()
		}
		sess, err := deps.Auth.Authenticate(c.UserContext(), token)
		if err != nil {
			deps.clearSessionCookie(c)
			return c.Next()
		}
		if ttl := deps.Options.SessionTTL; ttl > 0 && time.Until(sess.ExpiresAt) > ttl-time.Minute {
			// expiry was just extended
			deps.setSessionCookie(c, sess)
		}
		c.Locals(sessionLocal, sess)
		annotateLogger(c, "principal_id", sess.PrincipalID)
		return c.Next()
	}
}

// sessionFrom returns the authenticated session or nil.
func sessionFrom(c *fiber.Ctx) *domain.Session {
	sess, _ := c.Locals(sessionLocal).(*domain.Session)
	return sess
}

// RequireAPISession rejects anonymous JSON requests with 401.
func RequireAPISession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessionFrom(c) == nil {
			return errUnauthorized(c, "sign in required")
		}
		return c.Next()
	}
}

// RequirePageSession redirects anonymous browsers to the login page.
func RequirePageSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessionFrom(c) == nil {
			return c.Redirect("/login?next="+url.QueryEscape(safeNext(c.OriginalURL())), fiber.StatusSeeOther)
		}
		return c.Next()
	}
}

// SameOriginMiddleware rejects state-changing requests whose Origin header
// names another host. Together with SameSite=Lax cookies this blocks
// cross-site form posts.
func SameOriginMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" || origin == "null" {
			return c.Next()
		}
		host := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		if host != string(c.Request().Host()) {
			return newError(c, fiber.StatusForbidden, "forbidden", "cross-origin request rejected")
		}
		return c.Next()
	}
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}
