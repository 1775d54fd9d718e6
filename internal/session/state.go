// Package session implements the per-call session context: the call
// state machine, bounded chat history, the cancellation/barge-in
// signal, a tracked-task set with cleanup, and the single-slot prethink
// hint cache.
//
// Ported from original_source/core/state_machine.py and
// original_source/core/session_manager.py.
package session

// State is one of the call's lifecycle states.
type State string

const (
	StateIdle        State = "idle"
	StateListening   State = "listening"
	StateThinking    State = "thinking"
	StateSpeaking    State = "speaking"
	StateInterrupted State = "interrupted"
)

// StateMachine tracks the current call state. Transitions are
// unconditional, matching state_machine.py: there is no illegal-
// transition detection, by design — the orchestrator is responsible for
// only calling TransitionTo at the right points.
type StateMachine struct {
	current State
}

// NewStateMachine returns a state machine starting at StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateIdle}
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	return m.current
}

// TransitionTo moves to newState.
func (m *StateMachine) TransitionTo(newState State) {
	m.current = newState
}
