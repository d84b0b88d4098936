package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/lumeo-ai/lumeo/internal/health"
	"github.com/lumeo-ai/lumeo/internal/session"
	"github.com/lumeo-ai/lumeo/internal/transcript"
)

const version = "1.0.0"

func ProvideHealthHandler(
	redisClient *redis.Client,
	transcripts *transcript.Store,
	sessionMgr *session.Manager,
) *health.Handler {
	return health.NewHandler(redisClient, transcripts, sessionMgr, version)
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
