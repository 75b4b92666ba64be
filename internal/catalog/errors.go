// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound    = errors.New("catalog: resource not found")
	ErrUnavailable = errors.New("catalog: upstream unreachable or transport failure")
	ErrUpstream    = errors.New("catalog: upstream error")
	ErrBadResponse = errors.New("catalog: invalid response format")
	ErrTimeout     = errors.New("catalog: request timed out")
)

// Error wraps a sentinel with the operation and upstream details.
type Error struct {
	Sentinel  error
	Operation string
	Status    int
	Err       error // lower-level cause (net.Error, json error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("catalog: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// countsAsUpstreamFailure reports whether err should trip the breaker.
// Missing resources are answers, not outages.
func countsAsUpstreamFailure(err error) bool {
	return !errors.Is(err, ErrNotFound)
}
