// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/livetv/internal/catalog"
	"github.com/ManuGH/livetv/internal/resilience"
)

// Pinger is anything with a cheap liveness round trip.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a Pinger. A failed ping is unhealthy when critical,
// degraded otherwise.
type PingChecker struct {
	name     string
	pinger   Pinger
	critical bool
}

// NewPingChecker returns a checker for p.
func NewPingChecker(name string, p Pinger, critical bool) *PingChecker {
	return &PingChecker{name: name, pinger: p, critical: critical}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.pinger == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := c.pinger.Ping(ctx); err != nil {
		status := StatusDegraded
		if c.critical {
			status = StatusUnhealthy
		}
		return CheckResult{Status: status, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// BreakerChecker reports an upstream guarded by a circuit breaker. An open
// breaker degrades the service; cached catalog data is still served.
type BreakerChecker struct {
	cb *resilience.CircuitBreaker
}

// NewBreakerChecker returns a checker for cb.
func NewBreakerChecker(cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{cb: cb}
}

func (c *BreakerChecker) Name() string { return "breaker:" + c.cb.Name() }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch state := c.cb.State(); state {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: string(state)}
	default:
		return CheckResult{Status: StatusDegraded, Message: fmt.Sprintf("circuit %s", state)}
	}
}

// CatalogStatus is the part of the catalog cache the checker reads.
type CatalogStatus interface {
	Status(key string) catalog.Status
}

// CatalogChecker reports whether the playlist list is available.
type CatalogChecker struct {
	cat CatalogStatus
}

// NewCatalogChecker returns a checker for cat.
func NewCatalogChecker(cat CatalogStatus) *CatalogChecker {
	return &CatalogChecker{cat: cat}
}

func (c *CatalogChecker) Name() string { return "catalog" }

func (c *CatalogChecker) Check(context.Context) CheckResult {
	status := c.cat.Status(catalog.PlaylistsKey())
	switch status {
	case catalog.StatusReady:
		return CheckResult{Status: StatusHealthy, Message: string(status)}
	case catalog.StatusFailed:
		return CheckResult{Status: StatusDegraded, Message: "playlists unavailable"}
	default:
		return CheckResult{Status: StatusHealthy, Message: string(status)}
	}
}
