package agent

import (
	"sync"
	"time"
)

// State is the orchestrator loop state.
type State int

const (
	// StateReasoning waits on one model inference.
	StateReasoning State = iota
	// StateTooling waits on the dispatch of a requested tool batch.
	StateTooling
	// StateAnswered is terminal: the model produced a final answer.
	StateAnswered
	// StateAborted is terminal: retry budget or iteration bound exhausted.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateReasoning:
		return "REASONING"
	case StateTooling:
		return "TOOLING"
	case StateAnswered:
		return "ANSWERED"
	case StateAborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the state is a sink.
func (s State) Terminal() bool {
	return s == StateAnswered || s == StateAborted
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes loop state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// stateMachine validates the turn-loop transitions. One machine serves one
// run; terminal states are never left.
type stateMachine struct {
	currentState State
	mu           sync.RWMutex

	stateChangeListeners []StateListener
}

func newStateMachine(listeners ...StateListener) *stateMachine {
	return &stateMachine{
		currentState:         StateReasoning,
		stateChangeListeners: listeners,
	}
}

// State returns the current state.
func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentState
}

// transitionValid checks if a state transition is valid (must be called with lock held).
func (m *stateMachine) transitionValid(from, to State) bool {
	validTransitions := map[State][]State{
		StateReasoning: {StateTooling, StateAnswered, StateAborted},
		StateTooling:   {StateReasoning, StateAborted},
	}

	allowedStates, exists := validTransitions[from]
	if !exists {
		return false
	}
	for _, allowed := range allowedStates {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation.
func (m *stateMachine) Transition(state State, reason string) error {
	m.mu.Lock()

	if !m.transitionValid(m.currentState, state) {
		from := m.currentState
		m.mu.Unlock()
		return &InvalidTransitionError{From: from, To: state}
	}

	oldState := m.currentState
	m.currentState = state

	event := StateChange{
		FromState: oldState,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}

	// Notify listeners outside the lock to avoid deadlocks.
	listeners := make([]StateListener, len(m.stateChangeListeners))
	copy(listeners, m.stateChangeListeners)
	m.mu.Unlock()

	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (m *stateMachine) AddListener(listener StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateChangeListeners = append(m.stateChangeListeners, listener)
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
