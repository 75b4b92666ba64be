// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CatalogFetchTotal counts upstream catalog fetches by kind and result.
	CatalogFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_catalog_fetch_total",
		Help: "Upstream catalog fetches by kind (playlists|channels) and result (success|failure)",
	}, []string{"kind", "result"})

	// CatalogFetchDuration tracks upstream catalog latency.
	CatalogFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livetv_catalog_fetch_duration_seconds",
		Help:    "Upstream catalog fetch latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"kind"})

	// CatalogCacheLookups counts cache lookups by kind and outcome (hit|miss).
	CatalogCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_catalog_cache_lookups_total",
		Help: "Catalog cache lookups by kind and outcome",
	}, []string{"kind", "outcome"})
)

// ObserveCatalogFetch records one upstream fetch.
func ObserveCatalogFetch(kind string, success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	CatalogFetchTotal.WithLabelValues(kind, result).Inc()
	CatalogFetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// IncCatalogCacheLookup records a cache hit or miss.
func IncCatalogCacheLookup(kind string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	CatalogCacheLookups.WithLabelValues(kind, outcome).Inc()
}
