// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/livetv/internal/config"
	"github.com/ManuGH/livetv/internal/daemon"
	"github.com/ManuGH/livetv/internal/health"
	tvlog "github.com/ManuGH/livetv/internal/log"
	"github.com/ManuGH/livetv/internal/version"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

// resolveConfigPath prefers the flag, then LIVETV_CONFIG.
func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
}

// envOverrides counts the environment keys the loader found set.
func envOverrides(l *config.Loader) int {
	n := 0
	for k := range l.ConsumedEnvKeys {
		if _, ok := os.LookupEnv(k); ok {
			n++
		}
	}
	return n
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}
	os.Exit(run(resolveConfigPath(*configPath)))
}

func run(configPath string) int {
	tvlog.Configure(tvlog.Config{Level: "info", Service: daemon.ServiceName, Version: version.Version})
	logger := tvlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().
			Err(err).
			Str(tvlog.FieldEvent, "config.load_failed").
			Str("config_path", configPath).
			Msg("failed to load configuration")
		return 1
	}

	tvlog.Configure(tvlog.Config{Level: cfg.LogLevel, Service: daemon.ServiceName, Version: cfg.Version})
	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().
		Str(tvlog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", configPath).
		Int("env_overrides", envOverrides(loader)).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().
			Err(err).
			Str(tvlog.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
		return 1
	}

	logger.Info().
		Str(tvlog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.ListenAddr).
		Msg("starting livetv")
	logger.Info().Msgf("→ Catalog: %s (ttl: %s)", maskURL(cfg.Catalog.BaseURL), cfg.Catalog.TTL)
	logger.Info().Msgf("→ Cache: %s", cfg.Cache.Backend)
	if cfg.History.Enabled {
		logger.Info().Msgf("→ History: %s", cfg.History.Path)
	}
	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn().Msg("→ Allowed origins: none configured, player websocket accepts same-origin only")
	}

	comps, err := daemon.Build(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str(tvlog.FieldEvent, "bootstrap.failed").Msg("failed to initialise components")
		return 1
	}

	mgr, err := daemon.NewManager(daemon.Deps{
		Logger:          logger,
		ListenAddr:      cfg.ListenAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		APIHandler:      comps.API.Handler(),
	})
	if err != nil {
		logger.Error().Err(err).Str(tvlog.FieldEvent, "manager.creation_failed").Msg("failed to create daemon manager")
		return 1
	}
	comps.RegisterShutdownHooks(mgr)

	app := daemon.NewApp(logger, mgr, config.NewHolder(cfg, loader))
	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str(tvlog.FieldEvent, "manager.failed").Msg("daemon app failed")
		return 1
	}

	logger.Info().Msg("server exiting")
	return 0
}
