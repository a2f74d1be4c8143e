package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/usecases"
	"github.com/samirrijal/geodash/internal/pkg/metrics"
)

type loginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,max=254"`
	Password string `json:"password" form:"password" validate:"required,max=72"`
}

type registerRequest struct {
	Email       string `json:"email" form:"email"`
	DisplayName string `json:"display_name" form:"display_name"`
	Password    string `json:"password" form:"password"`
	Role        string `json:"role" form:"role"`
}

type passwordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// sessionResponse is what the API reveals about a session; never the token.
type sessionResponse struct {
	PrincipalID string              `json:"principal_id"`
	Email       string              `json:"email"`
	DisplayName string              `json:"display_name"`
	Role        domain.Role         `json:"role"`
	ExpiresAt   time.Time           `json:"expires_at"`
	Geolocation *domain.Geolocation `json:"geolocation,omitempty"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		PrincipalID: s.PrincipalID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		Role:        s.Role,
		ExpiresAt:   s.ExpiresAt,
		Geolocation: s.Geolocation,
	}
}

// LoginHandler authenticates with email and password and sets the session cookie.
func LoginHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req loginRequest
		if err := bindJSON(c, &req); err != nil {
			return errFromDomain(c, err)
		}
		sess, err := deps.Auth.Login(c.UserContext(), req.Email, req.Password)
		if err != nil {
			return errFromDomain(c, err)
		}
		deps.setSessionCookie(c, sess)
		return c.JSON(toSessionResponse(sess))
	}
}

// LogoutHandler ends the current session. Calling it without a session is fine.
func LogoutHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sess := sessionFrom(c); sess != nil {
			if err := deps.Auth.Logout(c.UserContext(), sess.ID); err != nil {
				return errFromDomain(c, err)
			}
		}
		deps.clearSessionCookie(c)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// MeHandler returns the signed-in principal and session state.
func MeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess := sessionFrom(c)
		p, err := deps.Auth.Me(c.UserContext(), sess)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{
			"principal": p,
			"session":   toSessionResponse(sess),
		})
	}
}

// ChangePasswordHandler replaces the caller's password.
func ChangePasswordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req passwordRequest
		if err := bindJSON(c, &req); err != nil {
			return errFromDomain(c, err)
		}
		if err := deps.Auth.ChangePassword(c.UserContext(), sessionFrom(c), req.OldPassword, req.NewPassword); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// RegisterHandler creates an account. Admins may pick the role; anonymous
// callers get a viewer account when registration is open.
func RegisterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req registerRequest
		if err := bindJSON(c, &req); err != nil {
			return errFromDomain(c, err)
		}
		p, err := deps.Auth.Register(c.UserContext(), sessionFrom(c), usecases.RegisterInput{
			Email:       req.Email,
			DisplayName: req.DisplayName,
			Password:    req.Password,
			Role:        domain.Role(req.Role),
		})
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	}
}

// loginLimitReached counts throttled attempts alongside failed ones.
func loginLimitReached(c *fiber.Ctx) error {
	metrics.LoginAttempts.WithLabelValues("throttled").Inc()
	if wantsHTML(c) {
		return renderError(c, fiber.StatusTooManyRequests, "Too many sign-in attempts. Please wait a minute and try again.")
	}
	return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many login attempts, please try again later")
}
