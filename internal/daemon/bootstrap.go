// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"fmt"

	"github.com/ManuGH/livetv/internal/api"
	"github.com/ManuGH/livetv/internal/cache"
	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/config"
	"github.com/ManuGH/livetv/internal/controls"
	"github.com/ManuGH/livetv/internal/health"
	"github.com/ManuGH/livetv/internal/history"
	"github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/player"
	"github.com/ManuGH/livetv/internal/ratelimit"
	"github.com/ManuGH/livetv/internal/remote"
	"github.com/ManuGH/livetv/internal/session"
	"github.com/ManuGH/livetv/internal/telemetry"
)

// ServiceName identifies the daemon in logs and traces.
const ServiceName = "livetv"

// Components are the long-lived parts of a running daemon.
type Components struct {
	Telemetry *telemetry.Provider
	Store     cache.Store
	Client    *catalog.Client
	Catalog   *catalog.Cache
	History   *history.Store // nil when history is disabled
	Players   *player.Registry
	Remote    *remote.Server
	Health    *health.Manager
	API       *api.Server
}

// Build constructs every component from cfg. On error, whatever was
// already built is closed again.
func Build(ctx context.Context, cfg config.AppConfig) (_ *Components, err error) {
	logger := log.WithComponent("bootstrap")
	c := &Components{}
	defer func() {
		if err != nil {
			c.close(context.WithoutCancel(ctx))
		}
	}()

	c.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	switch cfg.Cache.Backend {
	case config.CacheRedis:
		c.Store, err = cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:      cfg.Cache.Redis.Addr,
			Password:  cfg.Cache.Redis.Password,
			DB:        cfg.Cache.Redis.DB,
			KeyPrefix: cfg.Cache.Redis.KeyPrefix,
		}, log.WithComponent("cache"))
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
	default:
		c.Store = cache.NewMemoryStore(cfg.Cache.CleanupInterval)
	}

	c.Client = catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout,
		catalog.WithBreakerSettings(cfg.Catalog.BreakerThreshold, cfg.Catalog.BreakerReset))
	c.Catalog = catalog.NewCache(c.Client, c.Store,
		catalog.WithTTL(cfg.Catalog.TTL),
		catalog.WithFetchTimeout(cfg.Catalog.FetchTimeout),
		catalog.WithLogger(log.WithComponent("catalog")))

	var hist player.History
	if cfg.History.Enabled {
		c.History, err = history.Open(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		hist = c.History
	}

	c.Players = player.NewRegistry()
	c.Remote = remote.NewServer(remote.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		HelloTimeout:   cfg.Player.HelloTimeout,
		SessionOptions: []session.Option{
			session.WithRetryBudget(cfg.Player.MaxNetworkRetries, cfg.Player.RetryWindow),
		},
		ControlsOptions: []controls.Option{
			controls.WithIdleTimeout(cfg.Player.IdleTimeout),
		},
		Limiter: ratelimit.New(ratelimit.DefaultConfig()),
	}, c.Catalog, hist, c.Players)

	c.Health = health.NewManager(cfg.Version)
	c.Health.RegisterChecker(health.NewBreakerChecker(c.Client.Breaker()))
	c.Health.RegisterChecker(health.NewCatalogChecker(c.Catalog))
	c.Health.RegisterChecker(health.NewPingChecker("cache", c.Store, cfg.Cache.Backend == config.CacheRedis))
	if c.History != nil {
		c.Health.RegisterChecker(health.NewPingChecker("history", c.History, true))
	}

	var historyReader api.HistoryReader
	if c.History != nil {
		historyReader = c.History
	}
	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = ServiceName
	}
	c.API = api.New(api.Config{
		AllowedOrigins:     cfg.AllowedOrigins,
		TracingService:     tracing,
		RateLimitEnabled:   cfg.RateLimit.Enabled,
		RequestsPerMinute:  cfg.RateLimit.RequestsPerMinute,
		RateLimitWhitelist: cfg.RateLimit.Whitelist,
	}, api.Deps{
		Catalog: c.Catalog,
		History: historyReader,
		Players: c.Players,
		Remote:  c.Remote,
		Health:  c.Health,
	})

	logger.Info().
		Str(log.FieldEvent, "bootstrap.done").
		Str("cache_backend", cfg.Cache.Backend).
		Bool("history", c.History != nil).
		Bool("telemetry", c.Telemetry.Enabled()).
		Msg("components initialised")
	return c, nil
}

// RegisterShutdownHooks registers the component teardown on m. Hooks run
// LIFO, so the remote connections go first and telemetry is flushed last.
func (c *Components) RegisterShutdownHooks(m Manager) {
	m.RegisterShutdownHook("telemetry", func(ctx context.Context) error {
		return c.Telemetry.Shutdown(ctx)
	})
	m.RegisterShutdownHook("cache", func(context.Context) error {
		return c.Store.Close()
	})
	m.RegisterShutdownHook("catalog", func(context.Context) error {
		c.Catalog.Close()
		return nil
	})
	if c.History != nil {
		m.RegisterShutdownHook("history", func(context.Context) error {
			return c.History.Close()
		})
	}
	m.RegisterShutdownHook("players", func(context.Context) error {
		c.Players.CloseAll()
		return nil
	})
	m.RegisterShutdownHook("remote", c.Remote.Shutdown)
}

// close releases what Build managed to construct.
func (c *Components) close(ctx context.Context) {
	if c.Catalog != nil {
		c.Catalog.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Telemetry != nil {
		_ = c.Telemetry.Shutdown(ctx)
	}
}
