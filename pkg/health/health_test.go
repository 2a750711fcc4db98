package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestCheckerRegistry_AllHealthy(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(NewPingChecker("rabbitmq", pingerFunc(func(context.Context) error { return nil })))

	h := registry.Check(context.Background())

	assert.Equal(t, StatusHealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["rabbitmq"].Status)
	assert.Empty(t, h.Checks["rabbitmq"].Message)
}

func TestCheckerRegistry_OneUnhealthy(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(NewPingChecker("rabbitmq", pingerFunc(func(context.Context) error { return nil })))
	registry.Register(NewPingChecker("stats", pingerFunc(func(context.Context) error {
		return errors.New("connection refused")
	})))

	h := registry.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["rabbitmq"].Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["stats"].Status)
	assert.Contains(t, h.Checks["stats"].Message, "connection refused")
}

func TestCheckerRegistry_Empty(t *testing.T) {
	h := NewCheckerRegistry().Check(context.Background())
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Empty(t, h.Checks)
}
