// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

// State is the lifecycle state of a stream session.
type State string

const (
	StateIdle      State = "idle"
	StateAttaching State = "attaching"
	StateReady     State = "ready"
	StatePlaying   State = "playing"
	StatePaused    State = "paused"
	StateErrored   State = "errored"
	StateTornDown  State = "torn_down"
)

// EventKind drives a state transition.
type EventKind string

const (
	EvAttach     EventKind = "attach"
	EvMediaReady EventKind = "media_ready"
	EvPlaying    EventKind = "playing"
	EvPaused     EventKind = "paused"
	EvFatal      EventKind = "fatal"
	EvTearDown   EventKind = "tear_down"
)

// Transition is a single allowed edge in the session state machine.
type Transition struct {
	From  State
	To    State
	Event EventKind
}

var transitionsTable = []Transition{
	// Attach path
	{From: StateIdle, To: StateAttaching, Event: EvAttach},
	{From: StateTornDown, To: StateAttaching, Event: EvAttach},
	{From: StateAttaching, To: StateReady, Event: EvMediaReady},

	// A reload re-parses the manifest of the running session.
	{From: StateReady, To: StateReady, Event: EvMediaReady},
	{From: StatePlaying, To: StateReady, Event: EvMediaReady},
	{From: StatePaused, To: StateReady, Event: EvMediaReady},

	// Transport
	{From: StateReady, To: StatePlaying, Event: EvPlaying},
	{From: StatePaused, To: StatePlaying, Event: EvPlaying},
	{From: StateReady, To: StatePaused, Event: EvPaused},
	{From: StatePlaying, To: StatePaused, Event: EvPaused},

	// Fatal errors
	{From: StateAttaching, To: StateErrored, Event: EvFatal},
	{From: StateReady, To: StateErrored, Event: EvFatal},
	{From: StatePlaying, To: StateErrored, Event: EvFatal},
	{From: StatePaused, To: StateErrored, Event: EvFatal},

	// Teardown is reachable from anywhere except itself.
	{From: StateIdle, To: StateTornDown, Event: EvTearDown},
	{From: StateAttaching, To: StateTornDown, Event: EvTearDown},
	{From: StateReady, To: StateTornDown, Event: EvTearDown},
	{From: StatePlaying, To: StateTornDown, Event: EvTearDown},
	{From: StatePaused, To: StateTornDown, Event: EvTearDown},
	{From: StateErrored, To: StateTornDown, Event: EvTearDown},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}
