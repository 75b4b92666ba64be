// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ratelimit throttles player websocket connects and intents with
// token buckets shared per kind and held per key.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/livetv/internal/metrics"
	"golang.org/x/time/rate"
)

// Kinds of limited actions.
const (
	KindConnect = "connect" // keyed by client IP
	KindIntent  = "intent"  // keyed by player id
)

// Limit is one token bucket.
type Limit struct {
	Rate  rate.Limit
	Burst int
}

// Config holds rate limiting configuration. A kind missing from a map is
// not limited at that scope.
type Config struct {
	// Global buckets are shared by every key of a kind.
	Global map[string]Limit
	// PerKey buckets are held per kind and key.
	PerKey map[string]Limit
	// IdleTTL drops per-key buckets not used for this long.
	IdleTTL time.Duration
}

// DefaultConfig returns sensible defaults: a browser reconnecting or a
// remote control repeating keys stays well inside them.
func DefaultConfig() Config {
	return Config{
		Global: map[string]Limit{
			KindConnect: {Rate: 20, Burst: 50},
		},
		PerKey: map[string]Limit{
			KindConnect: {Rate: 1, Burst: 10},
			KindIntent:  {Rate: 20, Burst: 60},
		},
		IdleTTL: 5 * time.Minute,
	}
}

type keyed struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter manages the buckets.
type Limiter struct {
	config Config
	now    func() time.Time

	mu          sync.Mutex
	global      map[string]*rate.Limiter
	perKey      map[string]map[string]*keyed
	lastCleanup time.Time
}

// New creates a new rate limiter with the given config.
func New(config Config) *Limiter {
	l := &Limiter{
		config: config,
		now:    time.Now,
		global: make(map[string]*rate.Limiter),
		perKey: make(map[string]map[string]*keyed),
	}
	for kind, lim := range config.Global {
		l.global[kind] = rate.NewLimiter(lim.Rate, lim.Burst)
	}
	l.lastCleanup = l.now()
	return l
}

// Allow reports whether one action of kind by key may proceed.
func (l *Limiter) Allow(kind, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if g, ok := l.global[kind]; ok && !g.AllowN(now, 1) {
		metrics.IncRateLimitExceeded(kind, "global")
		return false
	}

	if lim, ok := l.config.PerKey[kind]; ok {
		buckets := l.perKey[kind]
		if buckets == nil {
			buckets = make(map[string]*keyed)
			l.perKey[kind] = buckets
		}
		b, ok := buckets[key]
		if !ok {
			b = &keyed{limiter: rate.NewLimiter(lim.Rate, lim.Burst)}
			buckets[key] = b
		}
		b.lastSeen = now
		if !b.limiter.AllowN(now, 1) {
			metrics.IncRateLimitExceeded(kind, "per_key")
			return false
		}
	}

	l.cleanupLocked(now)
	return true
}

// Forget drops the bucket of key, used when a player disconnects.
func (l *Limiter) Forget(kind, key string) {
	l.mu.Lock()
	delete(l.perKey[kind], key)
	l.mu.Unlock()
}

// Len reports how many per-key buckets kind holds.
func (l *Limiter) Len(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey[kind])
}

// cleanupLocked drops idle per-key buckets at most once per IdleTTL.
func (l *Limiter) cleanupLocked(now time.Time) {
	if l.config.IdleTTL <= 0 || now.Sub(l.lastCleanup) < l.config.IdleTTL {
		return
	}
	for _, buckets := range l.perKey {
		for key, b := range buckets {
			if now.Sub(b.lastSeen) >= l.config.IdleTTL {
				delete(buckets, key)
			}
		}
	}
	l.lastCleanup = now
}

// ClientIP extracts the client IP of r. Forwarding headers are honoured
// only when trustForwarded is set, i.e. behind a known reverse proxy.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
