// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/config"
	"github.com/ManuGH/livetv/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockChecker struct {
	name   string
	result CheckResult
}

func (m mockChecker) Name() string                       { return m.name }
func (m mockChecker) Check(context.Context) CheckResult { return m.result }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type catalogStatus catalog.Status

func (s catalogStatus) Status(string) catalog.Status { return catalog.Status(s) }

func TestHealthIsAlwaysAlive(t *testing.T) {
	m := NewManager("1.2.3")
	m.RegisterChecker(mockChecker{name: "db", result: CheckResult{Status: StatusUnhealthy}})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Nil(t, resp.Checks)

	verbose := m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, verbose.Status)
	assert.Contains(t, verbose.Checks, "db")
}

func TestReadyFoldsWorstStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []Status
		want    Status
		ready   bool
	}{
		{"no checkers", nil, StatusHealthy, true},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, true},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, true},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("test")
			for i, s := range tt.results {
				m.RegisterChecker(mockChecker{name: string(rune('a' + i)), result: CheckResult{Status: s}})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Equal(t, tt.ready, resp.Ready)
			assert.Len(t, resp.Checks, len(tt.results))
		})
	}
}

func TestServeReadyStatusCodes(t *testing.T) {
	m := NewManager("test")
	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	m.RegisterChecker(mockChecker{name: "history", result: CheckResult{Status: StatusUnhealthy, Error: "locked"}})
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, "locked", resp.Checks["history"].Error)
}

func TestServeHealthVerbose(t *testing.T) {
	m := NewManager("test")
	m.RegisterChecker(mockChecker{name: "cache", result: CheckResult{Status: StatusDegraded}})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Contains(t, resp.Checks, "cache")
}

func TestCheckTimeoutIsApplied(t *testing.T) {
	m := NewManager("test")
	m.timeout = 20 * time.Millisecond
	m.RegisterChecker(NewPingChecker("slow", pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), true))

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline")
}

func TestPingChecker(t *testing.T) {
	boom := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	ok := pingFunc(func(context.Context) error { return nil })

	assert.Equal(t, StatusHealthy, NewPingChecker("cache", ok, true).Check(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, NewPingChecker("history", boom, true).Check(context.Background()).Status)

	res := NewPingChecker("cache", boom, false).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "connection refused", res.Error)

	assert.Equal(t, StatusHealthy, NewPingChecker("none", nil, true).Check(context.Background()).Status)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestBreakerChecker(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := resilience.NewCircuitBreaker("catalog", 1, time.Minute, resilience.WithClock(clock))
	c := NewBreakerChecker(cb)
	assert.Equal(t, "breaker:catalog", c.Name())
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("upstream down") })
	require.Equal(t, resilience.StateOpen, cb.State())

	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "circuit open", res.Message)
}

func TestCatalogChecker(t *testing.T) {
	tests := []struct {
		status catalog.Status
		want   Status
	}{
		{catalog.StatusReady, StatusHealthy},
		{catalog.StatusLoading, StatusHealthy},
		{catalog.StatusEmpty, StatusHealthy},
		{catalog.StatusFailed, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got := NewCatalogChecker(catalogStatus(tt.status)).Check(context.Background())
			assert.Equal(t, tt.want, got.Status)
		})
	}
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.History.Path = filepath.Join(dir, "history.db")
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	bad := cfg
	bad.History.Path = filepath.Join(dir, "missing", "history.db")
	assert.Error(t, PerformStartupChecks(context.Background(), bad))

	bad = cfg
	bad.ListenAddr = "8080"
	assert.Error(t, PerformStartupChecks(context.Background(), bad))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	bad = cfg
	bad.History.Path = filepath.Join(file, "history.db")
	assert.Error(t, PerformStartupChecks(context.Background(), bad))

	disabled := cfg
	disabled.History.Enabled = false
	disabled.History.Path = filepath.Join(dir, "missing", "history.db")
	assert.NoError(t, PerformStartupChecks(context.Background(), disabled))
}
