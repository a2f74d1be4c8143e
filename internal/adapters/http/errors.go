package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

// errUnauthorized returns a 401 error.
func errUnauthorized(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusUnauthorized, "unauthorized", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusInternalServerError, "internal_error", msg)
}

// classify maps a domain error kind to a status, code and public message.
// Unknown errors are internal and never leak their text.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "invalid_credentials", domain.ErrInvalidCredentials.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, "unauthorized", "sign in required"
	case errors.Is(err, domain.ErrForbidden):
		return fiber.StatusForbidden, "forbidden", publicMessage(err)
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, "not_found", "not found"
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, "conflict", publicMessage(err)
	case errors.Is(err, domain.ErrTooLarge):
		return fiber.StatusRequestEntityTooLarge, "too_large", publicMessage(err)
	case errors.Is(err, domain.ErrUnsupportedMedia):
		return fiber.StatusUnsupportedMediaType, "unsupported_media", publicMessage(err)
	case errors.Is(err, domain.ErrInvalidInput):
		return fiber.StatusBadRequest, "bad_request", publicMessage(err)
	}
	return fiber.StatusInternalServerError, "internal_error", "internal error"
}

// publicMessage strips the trailing domain kind ("...: invalid input") so
// users see the specific reason first.
func publicMessage(err error) string {
	msg := err.Error()
	for _, kind := range []error{domain.ErrInvalidInput, domain.ErrConflict, domain.ErrForbidden, domain.ErrTooLarge, domain.ErrUnsupportedMedia} {
		msg = strings.TrimSuffix(msg, ": "+kind.Error())
	}
	return msg
}

// errFromDomain writes the JSON error for err and logs internal failures.
func errFromDomain(c *fiber.Ctx, err error) error {
	status, code, msg := classify(err)
	if status >= fiber.StatusInternalServerError {
		LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
	}
	return newError(c, status, code, msg)
}
