package bootstrap

import (
	"github.com/eleven-am/voice-client/internal/health"
	"github.com/eleven-am/voice-client/internal/voicesession"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

const version = "1.0.0"

func ProvideHealthHandler(cfg *Config, ctrl *voicesession.Controller) *health.Handler {
	return health.NewHandler(ctrl, map[string]health.Check{
		"credential": health.CredentialCheck(cfg.Session.APIKey),
	}, version)
}

func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()
			return next(c)
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
