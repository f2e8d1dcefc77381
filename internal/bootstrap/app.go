package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cassiomorais/txcoord/internal/ambient"
	"github.com/cassiomorais/txcoord/internal/config"
	"github.com/cassiomorais/txcoord/internal/observability"
	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Redis   *redis.Client
	Manager *txcoord.Manager
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	opts := []txcoord.Option{
		txcoord.WithLogger(logger),
		txcoord.WithDefaultMode(cfg.DefaultMode()),
	}
	if cfg.Coordinator.CascadeFailures {
		opts = append(opts, txcoord.WithFailureCascade())
	}

	var redisClient *redis.Client
	if cfg.Ambient.Enabled {
		redisClient, err = ambient.NewClient(ctx, &cfg.Ambient.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		opts = append(opts, txcoord.WithAmbientBridge(
			ambient.NewRedisBridge(redisClient, cfg.Ambient.RegistrationTTL, logger)))
		logger.Info().Msg("Ambient bridge enabled")
	}

	manager := txcoord.NewManager(opts...)
	observability.RegisterLogging(manager, logger)

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
		observability.RegisterMetrics(manager, metrics)
		logger.Info().Msg("Metrics initialized")
	}
	if cfg.Observability.EnableTracing {
		observability.RegisterTracing(manager, serviceName)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
		Redis:   redisClient,
		Manager: manager,
	}, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
}
