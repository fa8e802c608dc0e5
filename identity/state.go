package identity

import (
	"fmt"
)

// State is a step of the identity lifecycle.
type State int

const (
	StateUnresolved State = iota
	StateBootstrapping
	StateLoaded
	StateIDRegistered
	StateKeysRegistered
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateBootstrapping:
		return "bootstrapping"
	case StateLoaded:
		return "loaded"
	case StateIDRegistered:
		return "id-registered"
	case StateKeysRegistered:
		return "keys-registered"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateReady || s == StateFailed
}

// Event drives a transition.
type Event int

const (
	// EventFound: the context was loaded from the store.
	EventFound Event = iota
	// EventNotFound: no populated context exists.
	EventNotFound
	// EventBootstrapped: a new context was created and persisted.
	EventBootstrapped
	// EventIDRegistered: the identity is registered (now or earlier).
	EventIDRegistered
	// EventKeysRegistered: the keys are registered (now or earlier).
	EventKeysRegistered
	// EventKeysChecked: the rotation schedule was checked.
	EventKeysChecked
	// EventFail: the current step failed.
	EventFail
)

func (e Event) String() string {
	switch e {
	case EventFound:
		return "found"
	case EventNotFound:
		return "not-found"
	case EventBootstrapped:
		return "bootstrapped"
	case EventIDRegistered:
		return "id-registered"
	case EventKeysRegistered:
		return "keys-registered"
	case EventKeysChecked:
		return "keys-checked"
	case EventFail:
		return "fail"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrInvalidTransition is returned by Transition for an event the state does not accept.
type ErrInvalidTransition struct {
	From  State
	Event Event
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition from %s on %s", e.From, e.Event)
}

// Transition returns the state reached from s on ev.
func Transition(s State, ev Event) (State, error) {
	if s.Terminal() {
		return s, ErrInvalidTransition{From: s, Event: ev}
	}
	if ev == EventFail {
		return StateFailed, nil
	}

	switch {
	case s == StateUnresolved && ev == EventFound:
		return StateLoaded, nil
	case s == StateUnresolved && ev == EventNotFound:
		return StateBootstrapping, nil
	case s == StateBootstrapping && ev == EventBootstrapped:
		return StateLoaded, nil
	case s == StateLoaded && ev == EventIDRegistered:
		return StateIDRegistered, nil
	case s == StateIDRegistered && ev == EventKeysRegistered:
		return StateKeysRegistered, nil
	case s == StateKeysRegistered && ev == EventKeysChecked:
		return StateReady, nil
	}

	return s, ErrInvalidTransition{From: s, Event: ev}
}
