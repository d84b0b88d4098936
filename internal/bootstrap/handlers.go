package bootstrap

import (
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/lumeo-ai/lumeo/internal/flow"
	"github.com/lumeo-ai/lumeo/internal/gateway"
	"github.com/lumeo-ai/lumeo/internal/session"
	"github.com/lumeo-ai/lumeo/internal/shared"
	"github.com/lumeo-ai/lumeo/internal/tools"
	"github.com/lumeo-ai/lumeo/internal/transcript"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideToolRegistry(cfg *Config, redisClient *redis.Client, logger *slog.Logger) *tools.Registry {
	return tools.NewRegistry(tools.Config{
		OpenAIKey: cfg.OpenAIKey,
		TavilyKey: cfg.TavilyKey,
		Redis:     redisClient,
		Log:       logger.With("component", "tools"),
	})
}

func ProvideSessionStore(redisClient *redis.Client) *session.Store {
	if redisClient == nil {
		return nil
	}
	return session.NewStore(redisClient)
}

func ProvideSessionManager(
	lc fx.Lifecycle,
	cfg *Config,
	registry *tools.Registry,
	records *session.Store,
	transcripts *transcript.Store,
	logger *slog.Logger,
) *session.Manager {
	manager := session.NewManager(session.ManagerConfig{
		Connection: flow.ConnectionConfig{
			URL:       cfg.FlowURL,
			AuthToken: cfg.FlowAuthToken,
		},
		Audio: flow.AudioSettings{
			SampleRate: cfg.AudioSampleRate,
			ChunkSize:  cfg.AudioChunkSize,
		},
		Conversation: flow.ConversationConfig{
			TemplateID:        cfg.TemplateID,
			TemplateVariables: cfg.TemplateVariables,
		},
		Backoff:     shared.BackoffConfig{},
		Registry:    registry,
		Records:     records,
		Transcripts: transcripts,
		Log:         logger,
	})
	lc.Append(fx.StopHook(manager.Close))
	return manager
}

func ProvideGatewayHandler(manager *session.Manager, logger *slog.Logger) *gateway.Handler {
	return gateway.NewHandler(manager, logger.With("handler", "gateway"))
}

func ProvideSessionHandler(records *session.Store, logger *slog.Logger) *session.Handler {
	if records == nil {
		return nil
	}
	return session.NewSessionHandler(records, logger.With("handler", "sessions"))
}

func RegisterRoutes(e *echo.Echo, handler *gateway.Handler, sessions *session.Handler) {
	handler.Register(e)
	// Record/metrics routes need redis; without it there is nothing to serve.
	if sessions != nil {
		sessions.Register(e)
	}
}

var AssistantModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideToolRegistry,
		ProvideSessionStore,
		ProvideSessionManager,
		ProvideGatewayHandler,
		ProvideSessionHandler,
	),
	fx.Invoke(RegisterRoutes),
)
