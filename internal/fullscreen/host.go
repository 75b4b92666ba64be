// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fullscreen toggles fullscreen on the player container through
// whichever vendor variant the client supports.
package fullscreen

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnsupported is returned when the client offers no fullscreen API.
var ErrUnsupported = errors.New("fullscreen: not supported")

// Vendor variants in preference order.
const (
	VariantStandard = "standard"
	VariantWebkit   = "webkit"
	VariantMoz      = "moz"
	VariantMS       = "ms"
)

// Variants lists the known vendor variants in preference order.
var Variants = []string{VariantStandard, VariantWebkit, VariantMoz, VariantMS}

// API is one vendor variant of the fullscreen API.
type API interface {
	Name() string
	Available() bool
	Request(ctx context.Context) error
	Exit(ctx context.Context) error
}

// Host owns the fullscreen state of one player.
type Host struct {
	mu     sync.Mutex
	apis   []API
	active bool
}

// NewHost returns a host over the given variants, tried in order.
func NewHost(apis ...API) *Host {
	return &Host{apis: apis}
}

func (h *Host) pick() API {
	for _, api := range h.apis {
		if api != nil && api.Available() {
			return api
		}
	}
	return nil
}

// Supported reports whether any variant is available.
func (h *Host) Supported() bool {
	return h.pick() != nil
}

// Toggle enters or leaves fullscreen and reports the resulting state.
func (h *Host) Toggle(ctx context.Context) (bool, error) {
	api := h.pick()
	if api == nil {
		return false, ErrUnsupported
	}

	h.mu.Lock()
	active := h.active
	h.mu.Unlock()

	if active {
		if err := api.Exit(ctx); err != nil {
			return true, fmt.Errorf("fullscreen: exit via %s: %w", api.Name(), err)
		}
	} else {
		if err := api.Request(ctx); err != nil {
			return false, fmt.Errorf("fullscreen: request via %s: %w", api.Name(), err)
		}
	}

	h.mu.Lock()
	h.active = !active
	active = h.active
	h.mu.Unlock()
	return active, nil
}

// Sync records a state change made outside Toggle, e.g. the user pressing Escape.
func (h *Host) Sync(active bool) {
	h.mu.Lock()
	h.active = active
	h.mu.Unlock()
}

// Active reports whether the container is fullscreen.
func (h *Host) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}
