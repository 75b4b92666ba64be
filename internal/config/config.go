// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration with precedence
// ENV > YAML file > defaults.
package config

import "time"

// EnvPrefix prefixes every environment key read by the loader.
const EnvPrefix = "LIVETV_"

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version string `yaml:"-"`

	ListenAddr      string        `yaml:"listenAddr"`
	LogLevel        string        `yaml:"logLevel"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	Catalog   CatalogConfig   `yaml:"catalog"`
	Cache     CacheConfig     `yaml:"cache"`
	Player    PlayerConfig    `yaml:"player"`
	History   HistoryConfig   `yaml:"history"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CatalogConfig points at the upstream catalog API.
type CatalogConfig struct {
	BaseURL          string        `yaml:"baseUrl"`
	Timeout          time.Duration `yaml:"timeout"`
	FetchTimeout     time.Duration `yaml:"fetchTimeout"`
	TTL              time.Duration `yaml:"ttl"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// CacheConfig selects the catalog cache backend.
type CacheConfig struct {
	Backend         string        `yaml:"backend"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	Redis           RedisConfig   `yaml:"redis"`
}

// RedisConfig is used when Backend is "redis".
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// PlayerConfig tunes the player shell and its stream session.
type PlayerConfig struct {
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	MaxNetworkRetries int           `yaml:"maxNetworkRetries"`
	RetryWindow       time.Duration `yaml:"retryWindow"`
	HelloTimeout      time.Duration `yaml:"helloTimeout"`
}

// HistoryConfig controls the watch-history database.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RateLimitConfig limits API requests per client IP.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled"`
	RequestsPerMinute int      `yaml:"requestsPerMinute"`
	Whitelist         []string `yaml:"whitelist"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:      ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		Catalog: CatalogConfig{
			BaseURL:          "http://localhost:9000/api",
			Timeout:          10 * time.Second,
			FetchTimeout:     15 * time.Second,
			TTL:              0,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:         CacheMemory,
			CleanupInterval: time.Minute,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "livetv:",
			},
		},
		Player: PlayerConfig{
			IdleTimeout:       5 * time.Second,
			MaxNetworkRetries: 3,
			RetryWindow:       30 * time.Second,
			HelloTimeout:      10 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "data/history.db",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 600,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
			Environment:  "production",
		},
	}
}
