// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionAttachTotal counts stream session attaches by mode (engine|native) and result.
	SessionAttachTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_session_attach_total",
		Help: "Stream session attach attempts by mode and result",
	}, []string{"mode", "result"})

	// SessionTeardownTotal counts released engine instances.
	SessionTeardownTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetv_session_teardown_total",
		Help: "Stream sessions torn down",
	})

	// SessionsActive is the number of stream sessions currently bound to a surface.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livetv_sessions_active",
		Help: "Stream sessions currently bound to a video surface",
	})

	// SessionRecoveryTotal counts in-session recovery attempts by kind (network|media).
	SessionRecoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_session_recovery_total",
		Help: "In-session recovery attempts by error kind",
	}, []string{"kind"})

	// SessionEngineErrors counts engine errors by kind and fatality.
	SessionEngineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_session_engine_errors_total",
		Help: "Engine errors by kind and fatality",
	}, []string{"kind", "fatal"})

	// SessionStaleEvents counts engine callbacks dropped because their session was superseded.
	SessionStaleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetv_session_stale_events_total",
		Help: "Engine events dropped because the session generation changed",
	})

	// PlayersActive is the number of mounted player shells.
	PlayersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livetv_players_active",
		Help: "Mounted player shells",
	})
)

// IncSessionAttach records an attach outcome.
func IncSessionAttach(native bool, success bool) {
	mode := "engine"
	if native {
		mode = "native"
	}
	result := "failure"
	if success {
		result = "success"
	}
	SessionAttachTotal.WithLabelValues(mode, result).Inc()
}

// IncEngineError records an engine error.
func IncEngineError(kind string, fatal bool) {
	f := "false"
	if fatal {
		f = "true"
	}
	SessionEngineErrors.WithLabelValues(kind, f).Inc()
}
