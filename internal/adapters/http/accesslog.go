package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// AccessLogMiddleware logs one structured line per request: method, route,
// status, latency, bytes sent, request ID, the signed-in principal, and the
// error if any. Streamed bodies report their declared length.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		method := c.Method()
		path := c.Path()
		requestID, _ := c.Locals("requestid").(string)

		err := c.Next()

		resp := c.Response()
		status := resp.StatusCode()
		bytesOut := resp.Header.ContentLength()
		if !resp.IsBodyStream() {
			bytesOut = len(resp.Body())
		}

		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", bytesOut),
			slog.String("request_id", requestID),
		}
		if sess := sessionFrom(c); sess != nil {
			attrs = append(attrs, slog.String("principal_id", sess.PrincipalID))
		}

		level := slog.LevelInfo
		switch {
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			level = slog.LevelError
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		slog.LogAttrs(c.UserContext(), level, method+" "+path, attrs...)
		return err
	}
}
