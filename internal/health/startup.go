// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/livetv/internal/config"
	"github.com/ManuGH/livetv/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks verifies the environment before the server starts.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str(log.FieldEvent, "startup.checks_begin").Msg("running pre-flight startup checks")

	if cfg.History.Enabled {
		if err := checkWritableDir(logger, filepath.Dir(cfg.History.Path)); err != nil {
			return fmt.Errorf("history directory check failed: %w", err)
		}
	}
	if err := checkListenAddr(logger, cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	if cfg.Cache.Backend == config.CacheRedis {
		checkReachable(ctx, logger, "redis", cfg.Cache.Redis.Addr)
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	probe := filepath.Join(dir, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	_ = os.Remove(probe)
	logger.Info().Str("path", dir).Msg("history directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	logger.Info().Str("addr", addr).Msg("listen address is valid")
	return nil
}

// checkReachable only warns; the cache falls back to the upstream when the
// backend is down.
func checkReachable(ctx context.Context, logger zerolog.Logger, name, addr string) {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msgf("%s not reachable at startup", name)
		return
	}
	_ = conn.Close()
}
