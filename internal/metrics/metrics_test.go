// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuGH/livetv/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	metrics.SetCircuitBreakerState("catalog-test", "open")
	metrics.SetCircuitBreakerState("catalog-test", "half-open")

	body := scrape(t)
	assert.Contains(t, body, `livetv_circuit_breaker_state{component="catalog-test",state="half-open"} 1`)
	assert.Contains(t, body, `livetv_circuit_breaker_state{component="catalog-test",state="open"} 0`)
}

func TestObserveCatalogFetch(t *testing.T) {
	before := testutil.ToFloat64(metrics.CatalogFetchTotal.WithLabelValues("channels", "failure"))
	metrics.ObserveCatalogFetch("channels", false, 20*time.Millisecond)
	after := testutil.ToFloat64(metrics.CatalogFetchTotal.WithLabelValues("channels", "failure"))
	assert.Equal(t, before+1, after)
}

func TestIncSessionAttach_Labels(t *testing.T) {
	before := testutil.ToFloat64(metrics.SessionAttachTotal.WithLabelValues("native", "success"))
	metrics.IncSessionAttach(true, true)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SessionAttachTotal.WithLabelValues("native", "success")))
}

func scrape(t *testing.T) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}
