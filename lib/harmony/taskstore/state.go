package taskstore

import (
	"golang.org/x/xerrors"
)

// State is the cluster-wide lifecycle state of a coordinated task.
type State string

const (
	// StateNone is a registered task nobody runs yet.
	StateNone State = "NONE"
	// StateRunning is a task its owner confirmed running.
	StateRunning State = "RUNNING"
	// StatePaused is a task stopped on request. It survives ownership changes.
	StatePaused State = "PAUSED"
	// StateActivated asks the owner to start a previously paused task.
	StateActivated State = "ACTIVATED"
	// StateDeactivated asks the owner to stop the task.
	StateDeactivated State = "DEACTIVATED"
	// StateCompleted is terminal.
	StateCompleted State = "COMPLETED"
)

var allStates = []State{StateNone, StateRunning, StatePaused, StateActivated, StateDeactivated, StateCompleted}

// ParseState accepts the textual state as stored in the task table.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", xerrors.Errorf("unknown task state %q", s)
	}
	return st, nil
}

func (s State) Valid() bool {
	for _, v := range allStates {
		if v == s {
			return true
		}
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether the task will never be reassigned.
func (s State) IsTerminal() bool {
	return s == StateCompleted
}

// Demote is the state a task ends up in when its owner changes. It matches
// the CASE expression the store applies in SQL.
func (s State) Demote() State {
	switch s {
	case StateRunning:
		return StateNone
	case StateDeactivated:
		return StatePaused
	default:
		return s
	}
}

// MarshalText lets State round trip through TOML and JSON as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

func (s *State) UnmarshalText(text []byte) error {
	st, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
