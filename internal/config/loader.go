// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader builds an AppConfig with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string

	// ConsumedEnvKeys records every environment key Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader returns a loader for configPath; an empty path skips the file.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.configPath }

// Load parses the file strictly, applies the environment and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if cfg.History.Path != "" {
		if abs, err := filepath.Abs(cfg.History.Path); err == nil {
			cfg.History.Path = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes path over cfg. Unknown fields are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) key(name string) string {
	k := EnvPrefix + name
	l.ConsumedEnvKeys[k] = struct{}{}
	return k
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString(l.key("LISTEN_ADDR"), cfg.ListenAddr)
	cfg.LogLevel = ParseString(l.key("LOG_LEVEL"), cfg.LogLevel)
	cfg.AllowedOrigins = ParseStringSlice(l.key("ALLOWED_ORIGINS"), cfg.AllowedOrigins)
	cfg.ShutdownTimeout = ParseDuration(l.key("SHUTDOWN_TIMEOUT"), cfg.ShutdownTimeout)

	cfg.Catalog.BaseURL = ParseString(l.key("CATALOG_URL"), cfg.Catalog.BaseURL)
	cfg.Catalog.Timeout = ParseDuration(l.key("CATALOG_TIMEOUT"), cfg.Catalog.Timeout)
	cfg.Catalog.FetchTimeout = ParseDuration(l.key("CATALOG_FETCH_TIMEOUT"), cfg.Catalog.FetchTimeout)
	cfg.Catalog.TTL = ParseDuration(l.key("CATALOG_TTL"), cfg.Catalog.TTL)
	cfg.Catalog.BreakerThreshold = ParseInt(l.key("CATALOG_BREAKER_THRESHOLD"), cfg.Catalog.BreakerThreshold)
	cfg.Catalog.BreakerReset = ParseDuration(l.key("CATALOG_BREAKER_RESET"), cfg.Catalog.BreakerReset)

	cfg.Cache.Backend = ParseString(l.key("CACHE_BACKEND"), cfg.Cache.Backend)
	cfg.Cache.CleanupInterval = ParseDuration(l.key("CACHE_CLEANUP_INTERVAL"), cfg.Cache.CleanupInterval)
	cfg.Cache.Redis.Addr = ParseString(l.key("REDIS_ADDR"), cfg.Cache.Redis.Addr)
	cfg.Cache.Redis.Password = ParseString(l.key("REDIS_PASSWORD"), cfg.Cache.Redis.Password)
	cfg.Cache.Redis.DB = ParseInt(l.key("REDIS_DB"), cfg.Cache.Redis.DB)
	cfg.Cache.Redis.KeyPrefix = ParseString(l.key("REDIS_KEY_PREFIX"), cfg.Cache.Redis.KeyPrefix)

	cfg.Player.IdleTimeout = ParseDuration(l.key("PLAYER_IDLE_TIMEOUT"), cfg.Player.IdleTimeout)
	cfg.Player.MaxNetworkRetries = ParseInt(l.key("PLAYER_MAX_NETWORK_RETRIES"), cfg.Player.MaxNetworkRetries)
	cfg.Player.RetryWindow = ParseDuration(l.key("PLAYER_RETRY_WINDOW"), cfg.Player.RetryWindow)
	cfg.Player.HelloTimeout = ParseDuration(l.key("PLAYER_HELLO_TIMEOUT"), cfg.Player.HelloTimeout)

	cfg.History.Enabled = ParseBool(l.key("HISTORY_ENABLED"), cfg.History.Enabled)
	cfg.History.Path = ParseString(l.key("HISTORY_PATH"), cfg.History.Path)

	cfg.RateLimit.Enabled = ParseBool(l.key("RATELIMIT_ENABLED"), cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = ParseInt(l.key("RATELIMIT_RPM"), cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.Whitelist = ParseStringSlice(l.key("RATELIMIT_WHITELIST"), cfg.RateLimit.Whitelist)

	cfg.Telemetry.Enabled = ParseBool(l.key("TELEMETRY_ENABLED"), cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = ParseString(l.key("TELEMETRY_EXPORTER"), cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = ParseString(l.key("TELEMETRY_ENDPOINT"), cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(l.key("TELEMETRY_SAMPLING_RATE"), cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = ParseString(l.key("TELEMETRY_ENVIRONMENT"), cfg.Telemetry.Environment)
}

// KnownEnvKeys lists every environment key the loader reads, sorted.
func KnownEnvKeys() []string {
	l := NewLoader("", "")
	cfg := Defaults()
	l.mergeEnv(&cfg)
	keys := make([]string, 0, len(l.ConsumedEnvKeys))
	for k := range l.ConsumedEnvKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
