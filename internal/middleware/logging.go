// Package middleware provides Echo middleware for the relay server.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Context keys set by the relay handlers and picked up by RequestLogger.
const (
	KeyHopMode     = "hop_mode"
	KeyImpersonate = "impersonate"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Relay requests additionally carry the hop mode and the fingerprint used.
// Server errors log at warn level.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()
			status := statusOf(c, err)

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if mode, ok := c.Get(KeyHopMode).(string); ok {
				attrs = append(attrs, "hop_mode", mode)
			}
			if fp, ok := c.Get(KeyImpersonate).(string); ok {
				attrs = append(attrs, "impersonate", fp)
			}

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(req.Context(), level, "request", attrs...)

			return err
		}
	}
}

// statusOf resolves the status the client will see. When a handler returns
// an *echo.HTTPError the response has not been written yet; Echo's error
// handler writes it after the middleware chain unwinds.
func statusOf(c echo.Context, err error) int {
	if c.Response().Committed || err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
