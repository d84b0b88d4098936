package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/lumeo-ai/lumeo/internal/transcript"
)

// ProvideRedisClient returns nil when redis is not configured; dependents
// treat a nil client as "persistence disabled".
func ProvideRedisClient(cfg *Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func ProvideTranscriptStore(lc fx.Lifecycle, cfg *Config) (*transcript.Store, error) {
	store, err := transcript.Open(cfg.TranscriptDBPath)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(store.Close))
	return store, nil
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideRedisClient,
		ProvideTranscriptStore,
	),
)
