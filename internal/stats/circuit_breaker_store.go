package stats

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"smssim/internal/config"
	"smssim/pkg/circuitbreaker"
)

const breakerName = "stats-store"

// CircuitBreakerStore stops hammering an unreachable store. While the
// breaker is open, calls fail immediately instead of waiting on timeouts.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.DefaultConfig(breakerName)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) Read(ctx context.Context) (Aggregate, error) {
	if s.cb == nil {
		return s.store.Read(ctx)
	}

	result, err := s.execute(ctx, func() (interface{}, error) {
		return s.store.Read(ctx)
	})
	if err != nil {
		return Aggregate{}, err
	}

	a, ok := result.(Aggregate)
	if !ok {
		return Aggregate{}, fmt.Errorf("store returned invalid result type")
	}
	return a, nil
}

func (s *CircuitBreakerStore) Write(ctx context.Context, a Aggregate) error {
	if s.cb == nil {
		return s.store.Write(ctx, a)
	}

	_, err := s.execute(ctx, func() (interface{}, error) {
		return nil, s.store.Write(ctx, a)
	})
	return err
}

func (s *CircuitBreakerStore) Update(ctx context.Context, d Delta) error {
	if s.cb == nil {
		return s.store.Update(ctx, d)
	}

	_, err := s.execute(ctx, func() (interface{}, error) {
		return nil, s.store.Update(ctx, d)
	})
	return err
}

func (s *CircuitBreakerStore) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	result, err := s.cb.ExecuteWithContext(ctx, fn)

	s.cb.RecordRequest(err == nil)

	if err != nil {
		if s.cb.IsOpen() {
			return nil, fmt.Errorf("circuit breaker is open for %s: %w", breakerName, err)
		}
		return nil, err
	}
	return result, nil
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) IsOpen() bool {
	if s.cb == nil {
		return false
	}
	return s.cb.IsOpen()
}
