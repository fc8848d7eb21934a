package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
	"github.com/edgecomet/pdfgen/internal/common/redis"
	"github.com/edgecomet/pdfgen/internal/render/chrome"
	"github.com/edgecomet/pdfgen/internal/render/compose"
	"github.com/edgecomet/pdfgen/internal/render/dump"
	"github.com/edgecomet/pdfgen/internal/render/enrich"
	"github.com/edgecomet/pdfgen/internal/render/lock"
	"github.com/edgecomet/pdfgen/internal/render/metrics"
	"github.com/edgecomet/pdfgen/internal/render/pipeline"
	"github.com/edgecomet/pdfgen/internal/render/retry"
)

func loadConfig(path string) (*config.Config, error) {
	absPath, err := config.GetConfigPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}
	return config.Load(absPath)
}

// components owns everything a pipeline needs; Close releases the Redis connection
type components struct {
	redis    *redis.Client
	registry *compose.Registry
	pipeline *pipeline.Pipeline
}

func (c *components) Close() error {
	return c.redis.Close()
}

// buildComponents connects to Redis, loads templates and assembles the pipeline.
// mc may be nil.
func buildComponents(cfg *config.Config, mc *metrics.MetricsCollector, logger *zap.Logger) (*components, error) {
	registry, err := compose.Load(cfg.Templates, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	chromeConfig := &chrome.Config{
		ChromePath:  cfg.Render.ChromePath,
		Paper:       cfg.Render.Paper,
		LoadTimeout: cfg.Render.LoadTimeout.ToDuration(),
		NetworkIdle: cfg.Render.NetworkIdle.ToDuration(),
	}
	backend, err := chrome.NewBackend(chromeConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid render configuration: %w", err)
	}

	redisClient, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	retrier := retry.New(backend, retry.Config{
		MaxAttempts:    cfg.Render.MaxAttempts,
		Backoff:        cfg.Render.Backoff.ToDuration(),
		AttemptTimeout: cfg.Render.AttemptTimeout.ToDuration(),
	}, mc, logger)

	deps := pipeline.Deps{
		Composer:   registry,
		Enricher:   enrich.New(enrich.NewQRCodeEncoder(), enrich.NewGoChartRenderer(), logger),
		Renderer:   retrier,
		Locker:     lock.NewCoordinator(redisClient, cfg.Lock.OperationTimeout.ToDuration(), logger),
		Metrics:    mc,
		Logger:     logger,
		LockTTL:    cfg.Lock.TTL.ToDuration(),
		RetryAfter: cfg.Lock.RetryAfter.ToDuration(),
	}
	if w := dump.NewWriter(cfg.Dump, logger); w != nil {
		deps.Dumper = w
	}

	p, err := pipeline.New(deps)
	if err != nil {
		redisClient.Close()
		return nil, err
	}

	logger.Info("Pipeline assembled",
		zap.String("redis", redisClient.Addr()),
		zap.Int("max_attempts", cfg.Render.MaxAttempts),
		zap.Duration("lock_ttl", time.Duration(cfg.Lock.TTL)),
		zap.String("paper", cfg.Render.Paper),
		zap.Bool("dumps", cfg.Dump.Enabled))

	return &components{redis: redisClient, registry: registry, pipeline: p}, nil
}
