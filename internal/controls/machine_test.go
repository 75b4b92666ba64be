// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package controls_test

import (
	"testing"
	"time"

	"github.com/ManuGH/livetv/internal/controls"
	"github.com/ManuGH/livetv/internal/controls/controlstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMachine(t *testing.T) (*controls.Machine, *controlstest.Clock) {
	t.Helper()
	clk := controlstest.NewClock()
	m := controls.New(controls.WithClock(clk))
	t.Cleanup(m.Stop)
	return m, clk
}

func TestIdleExpiryHides(t *testing.T) {
	m, clk := newMachine(t)
	assert.Equal(t, controls.StateHiding, m.State())

	clk.Advance(controls.DefaultIdleTimeout - time.Millisecond)
	assert.Equal(t, controls.StateHiding, m.State())

	clk.Advance(time.Millisecond)
	assert.Equal(t, controls.StateHidden, m.State())
	assert.False(t, m.Snapshot().Visible)
}

func TestIdleExpirySuppressed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *controls.Machine)
	}{
		{name: "sidebar open", setup: func(m *controls.Machine) { m.SetSidebarOpen(true) }},
		{name: "dropdown open", setup: func(m *controls.Machine) { m.SetDropdownOpen(true) }},
		{name: "paused", setup: func(m *controls.Machine) { m.SetPaused(true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clk := newMachine(t)
			tt.setup(m)

			clk.Advance(time.Minute)
			assert.Equal(t, controls.StateVisible, m.State())
			assert.Zero(t, clk.Pending())
		})
	}
}

func TestActivityRearms(t *testing.T) {
	m, clk := newMachine(t)

	clk.Advance(4 * time.Second)
	m.Activity()
	clk.Advance(4 * time.Second)
	assert.Equal(t, controls.StateHiding, m.State(), "activity restarts the idle period")

	clk.Advance(time.Second)
	assert.Equal(t, controls.StateHidden, m.State())

	m.Activity()
	assert.Equal(t, controls.StateHiding, m.State())
	assert.Equal(t, 1, clk.Pending())
}

func TestClosingOverlayRearms(t *testing.T) {
	m, clk := newMachine(t)

	m.SetSidebarOpen(true)
	clk.Advance(time.Minute)
	require.Equal(t, controls.StateVisible, m.State())

	m.SetSidebarOpen(false)
	assert.Equal(t, controls.StateHiding, m.State())
	clk.Advance(controls.DefaultIdleTimeout)
	assert.Equal(t, controls.StateHidden, m.State())
}

func TestResumeRearms(t *testing.T) {
	m, clk := newMachine(t)
	m.SetPaused(true)
	clk.Advance(time.Minute)
	require.Equal(t, controls.StateVisible, m.State())

	m.SetPaused(false)
	clk.Advance(controls.DefaultIdleTimeout)
	assert.Equal(t, controls.StateHidden, m.State())
}

func TestTapSurface(t *testing.T) {
	t.Run("toggles without overlays", func(t *testing.T) {
		m, _ := newMachine(t)
		m.TapSurface()
		assert.Equal(t, controls.StateHidden, m.State())
		m.TapSurface()
		assert.Equal(t, controls.StateHiding, m.State())
	})

	t.Run("closes sidebar instead of toggling", func(t *testing.T) {
		m, _ := newMachine(t)
		m.SetSidebarOpen(true)
		m.TapSurface()
		snap := m.Snapshot()
		assert.False(t, snap.SidebarOpen)
		assert.True(t, snap.Visible)
	})

	t.Run("closes dropdown instead of toggling", func(t *testing.T) {
		m, _ := newMachine(t)
		m.SetDropdownOpen(true)
		m.TapSurface()
		snap := m.Snapshot()
		assert.False(t, snap.DropdownOpen)
		assert.True(t, snap.Visible)
	})
}

func TestStaleTimerDropped(t *testing.T) {
	clk := &raceClock{}
	m := controls.New(controls.WithClock(clk))
	defer m.Stop()

	first := clk.last
	m.Activity()
	// The first timer's Stop lost the race and its callback still runs.
	first()
	assert.Equal(t, controls.StateHiding, m.State())

	clk.last()
	assert.Equal(t, controls.StateHidden, m.State())
}

// raceClock never stops timers, so every scheduled callback can still run.
type raceClock struct {
	last func()
}

type noStop struct{}

func (noStop) Stop() bool { return false }

func (c *raceClock) AfterFunc(_ time.Duration, f func()) controls.Timer {
	c.last = f
	return noStop{}
}

func TestOnChange(t *testing.T) {
	m, clk := newMachine(t)
	var got []controls.State
	unsubscribe := m.OnChange(func(s controls.Snapshot) { got = append(got, s.State) })

	clk.Advance(controls.DefaultIdleTimeout)
	m.Activity()
	m.Activity()
	unsubscribe()
	m.TapSurface()

	assert.Equal(t, []controls.State{controls.StateHidden, controls.StateHiding}, got)
}

func TestStopDisarms(t *testing.T) {
	m, clk := newMachine(t)
	m.Stop()
	assert.Zero(t, clk.Pending())
	m.Activity()
	clk.Advance(time.Minute)
	assert.NotEqual(t, controls.StateHidden, m.State())
}
