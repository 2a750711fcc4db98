package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"smssim/internal/config"
	"smssim/internal/constants"
	"smssim/internal/logger"
	"smssim/internal/stats"
	"smssim/internal/worker"
	"smssim/pkg/bootstrap"
	"smssim/pkg/health"
	"smssim/pkg/metrics"
	"smssim/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	redis          *redis.Client
	store          stats.Store
	workers        []*worker.Worker
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceNameSender)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceNameSender)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterSenderMetrics()
	metrics.RegisterQueueMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	a.redis = rdb

	store, err := a.dbConnector.InitStatsStore(rdb)
	if err != nil {
		return err
	}
	a.store = store

	if err := a.InitBroker(ctx, constants.ServiceNameSender); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.initWorkers()
	a.initHTTPServer()
	return nil
}

// initWorkers builds one worker per configured slot. Each owns its own
// random source so no sampler state is shared.
func (a *App) initWorkers() {
	cfg := a.Config.Sender
	a.workers = make([]*worker.Worker, 0, cfg.Workers)

	for i := 0; i < cfg.Workers; i++ {
		seed := cfg.Seed
		if seed != 0 {
			seed += uint64(i)
		}
		sampler := worker.NewRandomSampler(cfg.MeanProcessingDuration(), cfg.FailureRate, seed)
		w := worker.New(a.Config.Broker.QueueName, a.Broker, a.store, sampler, a.Logger,
			worker.WithPolicyLabel(a.Config.Stats.UpdatePolicy),
		)
		a.workers = append(a.workers, w)
	}
}

func (a *App) initHTTPServer() {
	if a.Config.Server.Port == 0 {
		return
	}

	mux := http.NewServeMux()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewRedisChecker(a.redis))
	healthRegistry.Register(health.NewPingChecker("broker", a.Broker))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		h := healthRegistry.Check(r.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		fmt.Fprintf(w, `{"status":"%s","timestamp":"%s"}`, h.Status, h.Timestamp.Format(time.RFC3339))
	})

	mux.Handle("/metrics", promhttp.Handler())

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      mux,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
}

// Run starts every worker and the HTTP server. It returns nil once ctx is
// cancelled, or the first fatal worker error, which also stops the rest.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	for _, w := range a.workers {
		g.Go(func() error {
			return w.Run(gCtx)
		})
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down sender service")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(a.redis)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
