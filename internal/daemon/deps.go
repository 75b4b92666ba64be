// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Deps contains dependencies required by the daemon Manager.
type Deps struct {
	Logger zerolog.Logger

	// ListenAddr is the API listen address. Ignored when Listener is set.
	ListenAddr string
	// Listener is a pre-bound listener, used by tests.
	Listener net.Listener

	// ShutdownTimeout bounds graceful shutdown including hooks.
	ShutdownTimeout time.Duration

	// APIHandler serves the HTTP API, the player websocket and the probes.
	APIHandler http.Handler
}

// Validate checks that all required dependencies are present.
func (d *Deps) Validate() error {
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	if d.ListenAddr == "" && d.Listener == nil {
		return ErrMissingListenAddr
	}
	if d.ShutdownTimeout <= 0 {
		d.ShutdownTimeout = 15 * time.Second
	}
	return nil
}
