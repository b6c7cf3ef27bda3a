package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"hopchain/internal/config"
	"hopchain/internal/fingerprint"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health, status and catalog endpoints.
type HealthHandler struct {
	cfg     *config.Config
	catalog *fingerprint.Catalog
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, sel *fingerprint.Selector, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, catalog: sel.Catalog(), version: v}
}

// Health reports that the relay is up. Relays and keep-alive pingers poll it.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns relay status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      string(h.version),
		"fingerprints": h.catalog.Len(),
		"auth_enabled": h.cfg.AuthEnabled(),
		"workers":      h.cfg.Hop.Workers,
	})
}

// Impersonate lists the supported fingerprints in catalog order.
func (h *HealthHandler) Impersonate(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.IDs())
}
