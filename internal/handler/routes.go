package handler

import (
	"github.com/labstack/echo/v4"

	"hopchain/internal/config"
	"hopchain/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// The metrics parameter is optional; the exposition route is only added when
// metrics are enabled and m is non-nil.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler, m *metrics.Metrics) {
	e.GET("/health", health.Health)
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)
	e.GET("/impersonate", health.Impersonate)

	e.POST("/proxy", proxy.Proxy)
	e.POST("/looproxy", proxy.LoopProxy)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(m.Handler()))
	}
}
