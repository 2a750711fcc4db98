package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"smssim/internal/config"
	"smssim/internal/logger"
	"smssim/internal/stats"
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

func (dc *DatabaseConnector) InitRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", dc.Config.Database.Redis.Host, dc.Config.Database.Redis.Port),
		Password: dc.Config.Database.Redis.Password,
		DB:       dc.Config.Database.Redis.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Info("Redis connected successfully")
	return rdb, nil
}

// InitStatsStore builds the aggregate store over rdb using the configured
// key and update policy, behind a circuit breaker when enabled.
func (dc *DatabaseConnector) InitStatsStore(rdb *redis.Client) (stats.Store, error) {
	kv := stats.NewRedisKV(rdb, dc.Config.Stats.MaxUpdateAttempts)

	base, err := stats.NewStore(kv, dc.Config.Stats.Key, stats.Policy(dc.Config.Stats.UpdatePolicy))
	if err != nil {
		return nil, fmt.Errorf("failed to create stats store: %w", err)
	}

	dc.Logger.Infow("Stats store ready",
		"key", dc.Config.Stats.Key,
		"update_policy", string(base.Policy()),
	)

	if !dc.Config.CircuitBreaker.Enabled {
		return base, nil
	}
	dc.Logger.Info("Circuit breaker enabled for stats store")
	return stats.NewCircuitBreakerStore(base, dc.Config.CircuitBreaker), nil
}

func (dc *DatabaseConnector) ShutdownDatabases(rdb *redis.Client) []error {
	var errs []error

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	return errs
}
