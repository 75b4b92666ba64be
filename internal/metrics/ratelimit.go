// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateLimitExceeded counts rejections of the player rate limiter.
var RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "livetv_ratelimit_exceeded_total",
	Help: "Total rate limit rejections by kind and scope",
}, []string{"kind", "scope"})

// IncRateLimitExceeded records one rejection. scope is "global" or "per_key".
func IncRateLimitExceeded(kind, scope string) {
	RateLimitExceeded.WithLabelValues(kind, scope).Inc()
}
