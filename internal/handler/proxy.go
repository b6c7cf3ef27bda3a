package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"hopchain/internal/fingerprint"
	"hopchain/internal/middleware"
	"hopchain/internal/model"
	"hopchain/internal/render"
	"hopchain/internal/service"
)

// apiKeyPattern matches apikey values in query strings or JSON fragments
// embedded in error messages.
var apiKeyPattern = regexp.MustCompile(`(?i)("?api_?key"?\s*[:=]\s*"?)[^&\s",}]+`)

type routeFunc func(context.Context, *model.Descriptor) (*service.Result, error)

// ProxyHandler serves the relay endpoints.
type ProxyHandler struct {
	router *service.Router
	logger *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(r *service.Router, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		router: r,
		logger: logger.With("component", "proxy_handler"),
	}
}

// Proxy performs a single hop to the target; the chain field is ignored.
func (h *ProxyHandler) Proxy(c echo.Context) error {
	return h.serve(c, h.router.Direct)
}

// LoopProxy terminates or forwards the request along its relay chain.
func (h *ProxyHandler) LoopProxy(c echo.Context) error {
	return h.serve(c, h.router.Handle)
}

func (h *ProxyHandler) serve(c echo.Context, route routeFunc) error {
	d, err := model.DecodeDescriptor(c.Request().Body)
	if err != nil {
		return h.mapError(c, err)
	}

	ctx := service.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
	res, err := route(ctx, d)
	if err != nil {
		return h.mapError(c, err)
	}
	c.Set(middleware.KeyHopMode, res.Mode.String())
	c.Set(middleware.KeyImpersonate, res.Fingerprint)

	if res.Mode == service.ModeForward {
		err = render.Forward(c, res)
	} else {
		err = render.Direct(c, res)
	}
	if err == nil {
		return nil
	}

	// Once the status line is out the client only sees a truncated body.
	if c.Response().Committed {
		h.logger.Error("writing response body",
			"err", sanitizeError(err),
			"path", c.Request().URL.Path,
			"mode", res.Mode.String(),
		)
		return nil
	}
	return h.mapError(c, err)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		h.logger.Debug("invalid descriptor", "err", verr.Error())
		return c.JSON(http.StatusUnprocessableEntity, detail(verr.Error()))
	}

	h.logger.Error("relay error",
		"err", sanitizeError(err),
		"path", c.Request().URL.Path,
	)

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return c.JSON(http.StatusUnauthorized, detail("Invalid API key"))
	case errors.Is(err, fingerprint.ErrUnsupported):
		return c.JSON(http.StatusBadRequest, detail(err.Error()))
	case errors.Is(err, service.ErrTransport):
		return c.JSON(http.StatusBadGateway, detail(sanitizeError(err)))
	default:
		return c.JSON(http.StatusInternalServerError, detail(sanitizeError(err)))
	}
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

// sanitizeError redacts API keys from error messages.
func sanitizeError(err error) string {
	return apiKeyPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
