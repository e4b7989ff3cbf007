package authclient

import (
	"errors"
	"fmt"
	"sync"
)

// State is the client's belief about its session.
type State int

const (
	// StateUnknown holds until the startup check resolves.
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Event drives a State transition.
type Event int

const (
	EventCheckSucceeded Event = iota
	EventCheckFailed
	EventLoggedIn
	EventSignedUp
	EventLoggedOut
	// EventUnauthorized is a 401 observed on any response after startup.
	EventUnauthorized
)

func (e Event) String() string {
	switch e {
	case EventCheckSucceeded:
		return "check_succeeded"
	case EventCheckFailed:
		return "check_failed"
	case EventLoggedIn:
		return "logged_in"
	case EventSignedUp:
		return "signed_up"
	case EventLoggedOut:
		return "logged_out"
	case EventUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// ErrInvalidTransition is returned for an event the current state does not accept.
var ErrInvalidTransition = errors.New("invalid auth state transition")

var transitions = map[State]map[Event]State{
	StateUnknown: {
		EventCheckSucceeded: StateAuthenticated,
		EventCheckFailed:    StateUnauthenticated,
	},
	StateUnauthenticated: {
		EventLoggedIn:  StateAuthenticated,
		EventSignedUp:  StateAuthenticated,
		EventLoggedOut: StateUnauthenticated,
	},
	StateAuthenticated: {
		EventLoggedOut:    StateUnauthenticated,
		EventUnauthorized: StateUnauthenticated,
	},
}

// TransitionFunc observes a completed transition.
type TransitionFunc func(from, to State, event Event)

// Machine tracks the auth state. It is safe for concurrent use; listeners
// run after the state has changed, outside the lock, in registration order.
type Machine struct {
	mu        sync.Mutex
	state     State
	listeners []TransitionFunc
}

// NewMachine returns a machine in StateUnknown.
func NewMachine() *Machine {
	return &Machine{state: StateUnknown}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether event would be accepted in the current state.
func (m *Machine) Can(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := transitions[m.state][event]
	return ok
}

// OnTransition registers fn to be called after every transition.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Fire applies event and returns the resulting state. A rejected event
// leaves the state unchanged.
func (m *Machine) Fire(event Event) (State, error) {
	m.mu.Lock()
	from := m.state
	to, ok := transitions[from][event]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, event, from)
	}
	m.state = to
	listeners := make([]TransitionFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(from, to, event)
	}
	return to, nil
}
