// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"net"
	"strings"
	"time"

	"github.com/ManuGH/livetv/internal/validate"
)

// Validate checks cfg and reports every failed field at once.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.ListenAddr("ListenAddr", cfg.ListenAddr)
	v.OneOf("LogLevel", strings.ToLower(cfg.LogLevel), validate.LogLevels)
	v.MinDuration("ShutdownTimeout", cfg.ShutdownTimeout, time.Second)

	v.URL("Catalog.BaseURL", cfg.Catalog.BaseURL, []string{"http", "https"})
	v.MinDuration("Catalog.Timeout", cfg.Catalog.Timeout, 100*time.Millisecond)
	v.MinDuration("Catalog.FetchTimeout", cfg.Catalog.FetchTimeout, 100*time.Millisecond)
	v.MinDuration("Catalog.TTL", cfg.Catalog.TTL, 0)
	v.Range("Catalog.BreakerThreshold", cfg.Catalog.BreakerThreshold, 1, 100)
	v.MinDuration("Catalog.BreakerReset", cfg.Catalog.BreakerReset, time.Second)

	v.OneOf("Cache.Backend", cfg.Cache.Backend, []string{CacheMemory, CacheRedis})
	if cfg.Cache.Backend == CacheRedis {
		v.HostPort("Cache.Redis.Addr", cfg.Cache.Redis.Addr)
		v.Range("Cache.Redis.DB", cfg.Cache.Redis.DB, 0, 15)
	}
	v.MinDuration("Cache.CleanupInterval", cfg.Cache.CleanupInterval, time.Second)

	v.MinDuration("Player.IdleTimeout", cfg.Player.IdleTimeout, 500*time.Millisecond)
	v.Range("Player.MaxNetworkRetries", cfg.Player.MaxNetworkRetries, 1, 20)
	v.MinDuration("Player.RetryWindow", cfg.Player.RetryWindow, time.Second)
	v.MinDuration("Player.HelloTimeout", cfg.Player.HelloTimeout, 100*time.Millisecond)

	if cfg.History.Enabled {
		v.ParentDir("History.Path", cfg.History.Path)
	}

	if cfg.RateLimit.Enabled {
		v.Positive("RateLimit.RequestsPerMinute", cfg.RateLimit.RequestsPerMinute)
	}
	for _, entry := range cfg.RateLimit.Whitelist {
		entry = strings.TrimSpace(entry)
		if net.ParseIP(entry) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		v.AddError("RateLimit.Whitelist", "must be a valid IP or CIDR", entry)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
