package stats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "smssim/pkg/errors"
	"smssim/pkg/metrics"
	"smssim/pkg/retry"
)

var ErrConflict = apperrors.NewError("STATS_CONFLICT", "stats update kept losing to concurrent writers", http.StatusConflict)

// RedisKV keeps the aggregate as a plain string value. Apply runs as a
// WATCH/MULTI/EXEC transaction and is retried when another writer touches
// the key in between.
type RedisKV struct {
	client *redis.Client
	policy retry.Policy
}

func NewRedisKV(client *redis.Client, maxAttempts int) *RedisKV {
	return &RedisKV{
		client: client,
		policy: retry.ConflictPolicy(maxAttempts),
	}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET failed: %w", err)
	}
	return value, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (r *RedisKV) Apply(ctx context.Context, key string, fn func(current string, found bool) (string, error)) error {
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		found := true
		if errors.Is(err, redis.Nil) {
			current, found = "", false
		} else if err != nil {
			return err
		}

		next, err := fn(current, found)
		if err != nil {
			return retry.NewFatalError(err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}

	err := retry.RetryWithCallback(ctx, r.policy, func() error {
		err := r.client.Watch(ctx, txf, key)
		if err == nil || errors.Is(err, redis.TxFailedErr) {
			return err
		}
		var fatal retry.FatalError
		if errors.As(err, &fatal) {
			return err
		}
		return retry.NewFatalError(fmt.Errorf("redis transaction failed: %w", err))
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRetryAttempt("stats", "redis_apply")
	})

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict.WithCause(err)
	}
	return err
}

func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
