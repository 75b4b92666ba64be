// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteConnections is the number of open player websockets.
	RemoteConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livetv_remote_connections",
		Help: "Open player websocket connections",
	})

	// RemoteIntentsTotal counts client intents by op and result.
	RemoteIntentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livetv_remote_intents_total",
		Help: "Player intents received over websocket by op and result",
	}, []string{"op", "result"})

	// RemoteDroppedFrames counts frames dropped because the client was too slow.
	RemoteDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livetv_remote_dropped_frames_total",
		Help: "View frames dropped because the send buffer was full",
	})
)

// IncRemoteIntent records one handled intent.
func IncRemoteIntent(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	RemoteIntentsTotal.WithLabelValues(op, result).Inc()
}
