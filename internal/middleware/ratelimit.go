package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"hopchain/internal/config"
)

// RateLimiter returns a per-IP rate limiting middleware backed by Echo's
// in-memory store. Rejections use the relay's {"detail": ...} error body.
// Health probes are never limited.
func RateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	limit := rate.Limit(cfg.RequestsPerSecond)
	burst := max(int(cfg.RequestsPerSecond), 1)

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/healthz"
		},
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:  limit,
			Burst: burst,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, _ error) error {
			return c.JSON(http.StatusForbidden, map[string]string{"detail": "unable to identify client"})
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"detail": "rate limit exceeded"})
		},
	})
}
