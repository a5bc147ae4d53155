package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
)

// ErrInvalidTransition is returned when an event is not allowed in the current state
var ErrInvalidTransition = errors.New("invalid session transition")

// State of an authentication session
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventKind identifies a session-provider event
type EventKind int

const (
	SignInStarted EventKind = iota
	SignInSucceeded
	SignInFailed
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignInStarted:
		return "sign_in_started"
	case SignInSucceeded:
		return "sign_in_succeeded"
	case SignInFailed:
		return "sign_in_failed"
	case SignedOut:
		return "signed_out"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event drives the machine. User is set for SignInSucceeded, Err for SignInFailed.
type Event struct {
	Kind EventKind
	User *model.User
	Err  error
}

// Snapshot is the observable state after a transition
type Snapshot struct {
	State State
	User  *model.User
	Err   error
}

// transitions lists the states each event may fire from
var transitions = map[EventKind]map[State]State{
	SignInStarted: {
		Unauthenticated: Authenticating,
		Failed:          Authenticating,
	},
	SignInSucceeded: {
		Authenticating: Authenticated,
	},
	SignInFailed: {
		Authenticating: Failed,
	},
	SignedOut: {
		Authenticated:   Unauthenticated,
		Failed:          Unauthenticated,
		Authenticating:  Unauthenticated,
		Unauthenticated: Unauthenticated,
	},
}

// Machine is the explicit authentication state of one client
type Machine struct {
	mu          sync.Mutex
	current     Snapshot
	subscribers []func(Snapshot)
}

func NewMachine() *Machine {
	return &Machine{current: Snapshot{State: Unauthenticated}}
}

// Fire applies an event. Invalid transitions leave the state untouched.
func (m *Machine) Fire(ev Event) (Snapshot, error) {
	m.mu.Lock()

	next, ok := transitions[ev.Kind][m.current.State]
	if !ok {
		from := m.current.State
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev.Kind, from)
	}
	if ev.Kind == SignInSucceeded && ev.User == nil {
		m.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s without user", ErrInvalidTransition, ev.Kind)
	}

	snap := Snapshot{State: next}
	switch ev.Kind {
	case SignInSucceeded:
		u := *ev.User
		snap.User = &u
	case SignInFailed:
		snap.Err = ev.Err
	}
	m.current = snap
	subscribers := append([]func(Snapshot){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(snap)
	}
	return snap, nil
}

// Current returns the latest snapshot
func (m *Machine) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// User returns the signed-in user, or nil when not authenticated
func (m *Machine) User() *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.State != Authenticated {
		return nil
	}
	return m.current.User
}

// Subscribe registers fn to be called after every transition
func (m *Machine) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}
