package server

import (
	"fmt"
	"sync"
)

// State identifies where a connection is in its lifecycle.
type State int32

const (
	// StateUninitialized is the state of a freshly opened connection.
	StateUninitialized State = iota
	// StateInitializing covers the initialize exchange.
	StateInitializing
	// StateReady accepts the full method set.
	StateReady
	// StateShuttingDown drains in-flight requests and rejects new ones.
	StateShuttingDown
	// StateClosed is terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting-down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// lifecycle is a monotonic state machine: states only ever advance. Failed
// transitions leave the current state untouched, so callers validate inputs
// before requesting one.
type lifecycle struct {
	mu    sync.Mutex
	state State
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateUninitialized}
}

func (l *lifecycle) current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// beginInitialize moves Uninitialized to Initializing.
func (l *lifecycle) beginInitialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateUninitialized {
		return fmt.Errorf("initialize received in state %s", l.state)
	}
	l.state = StateInitializing
	return nil
}

// completeInitialize moves Initializing to Ready.
func (l *lifecycle) completeInitialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateInitializing {
		return fmt.Errorf("cannot become ready from state %s", l.state)
	}
	l.state = StateReady
	return nil
}

// beginShutdown moves any live state to ShuttingDown. Repeat calls are
// no-ops so shutdown paths can race safely.
func (l *lifecycle) beginShutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state < StateShuttingDown {
		l.state = StateShuttingDown
	}
}

// close marks the terminal state.
func (l *lifecycle) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
}
