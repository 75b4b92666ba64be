// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package controls decides when the player chrome is shown. The chrome hides
// after an idle period unless an overlay is open or playback is paused.
package controls

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is how long the chrome stays up without activity.
const DefaultIdleTimeout = 5 * time.Second

// State is the visibility of the player chrome.
type State string

const (
	// StateVisible shows the chrome with auto-hide suppressed.
	StateVisible State = "visible"
	// StateHiding shows the chrome with the idle timer armed.
	StateHiding State = "hiding"
	// StateHidden hides the chrome.
	StateHidden State = "hidden"
)

// Snapshot is the machine state for rendering.
type Snapshot struct {
	State        State `json:"state"`
	Visible      bool  `json:"visible"`
	SidebarOpen  bool  `json:"sidebarOpen"`
	DropdownOpen bool  `json:"dropdownOpen"`
	Paused       bool  `json:"paused"`
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock injects the timer source.
func WithClock(c Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.idle = d
		}
	}
}

// Machine is the controls visibility state machine.
type Machine struct {
	mu       sync.Mutex
	clock    Clock
	idle     time.Duration
	state    State
	sidebar  bool
	dropdown bool
	paused   bool
	timer    Timer
	token    uint64
	stopped  bool
	subs     map[uint64]func(Snapshot)
	nextSub  uint64
}

// New returns a machine with the chrome visible and the idle timer armed.
func New(opts ...Option) *Machine {
	m := &Machine{
		clock: RealClock,
		idle:  DefaultIdleTimeout,
		state: StateVisible,
		subs:  make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.mu.Lock()
	m.rearmLocked()
	m.mu.Unlock()
	return m
}

// Activity records pointer movement or a tap inside the player.
func (m *Machine) Activity() {
	m.update(func() {
		m.state = StateVisible
		m.rearmLocked()
	})
}

// TapSurface handles a tap on the video itself. An open sidebar or dropdown
// is closed and the chrome stays up; otherwise the chrome toggles.
func (m *Machine) TapSurface() {
	m.update(func() {
		switch {
		case m.sidebar:
			m.sidebar = false
			m.state = StateVisible
			m.rearmLocked()
		case m.dropdown:
			m.dropdown = false
			m.state = StateVisible
			m.rearmLocked()
		case m.state == StateHidden:
			m.state = StateVisible
			m.rearmLocked()
		default:
			m.disarmLocked()
			m.state = StateHidden
		}
	})
}

// SetSidebarOpen opens or closes the channel sidebar.
func (m *Machine) SetSidebarOpen(open bool) {
	m.update(func() {
		m.sidebar = open
		m.state = StateVisible
		m.rearmLocked()
	})
}

// SetDropdownOpen opens or closes a quality or audio dropdown.
func (m *Machine) SetDropdownOpen(open bool) {
	m.update(func() {
		m.dropdown = open
		m.state = StateVisible
		m.rearmLocked()
	})
}

// SetPaused mirrors the playback state. Paused playback keeps the chrome up.
func (m *Machine) SetPaused(paused bool) {
	m.update(func() {
		if m.paused == paused {
			return
		}
		m.paused = paused
		m.state = StateVisible
		m.rearmLocked()
	})
}

// Stop disarms the timer for good.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.disarmLocked()
	m.mu.Unlock()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// OnChange registers fn for every state change.
func (m *Machine) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Machine) suppressedLocked() bool {
	return m.sidebar || m.dropdown || m.paused
}

// rearmLocked arms the idle timer unless auto-hide is suppressed. Caller must hold mu.
func (m *Machine) rearmLocked() {
	m.disarmLocked()
	if m.stopped || m.suppressedLocked() {
		return
	}
	token := m.token
	m.timer = m.clock.AfterFunc(m.idle, func() { m.expire(token) })
	if m.state == StateVisible {
		m.state = StateHiding
	}
}

// disarmLocked cancels the idle timer. A fire already in flight is dropped by
// its stale token. Caller must hold mu.
func (m *Machine) disarmLocked() {
	m.token++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.state == StateHiding {
		m.state = StateVisible
	}
}

func (m *Machine) expire(token uint64) {
	m.update(func() {
		if token != m.token || m.stopped {
			return
		}
		m.timer = nil
		if m.suppressedLocked() {
			m.state = StateVisible
			return
		}
		m.state = StateHidden
	})
}

func (m *Machine) update(fn func()) {
	m.mu.Lock()
	before := m.snapshotLocked()
	fn()
	after := m.snapshotLocked()
	var subs []func(Snapshot)
	if after != before {
		for _, s := range m.subs {
			subs = append(subs, s)
		}
	}
	m.mu.Unlock()

	for _, s := range subs {
		s(after)
	}
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:        m.state,
		Visible:      m.state != StateHidden,
		SidebarOpen:  m.sidebar,
		DropdownOpen: m.dropdown,
		Paused:       m.paused,
	}
}
