package transfer

import "strings"

// State is the lifecycle state of a block, blob or batch transfer.
//
// States are persisted as their integer code. The zero value is StateUnknown so
// a record whose state was never written decodes as unknown rather than as one
// of the operational states.
type State int

const (
	StateUnknown State = iota
	StatePending
	StateInProgress
	StatePaused
	StateFailed
	StateCanceled
	StateComplete
)

var stateLabels = map[State]string{
	StateUnknown:    "unknown",
	StatePending:    "pending",
	StateInProgress: "inProgress",
	StatePaused:     "paused",
	StateFailed:     "failed",
	StateCanceled:   "canceled",
	StateComplete:   "complete",
}

// String returns the label of the state.
func (s State) String() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return stateLabels[StateUnknown]
}

// Code returns the persisted integer code of the state.
func (s State) Code() int {
	return int(s)
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	_, ok := stateLabels[s]
	return ok
}

// StateFromCode decodes a persisted state code. Codes that do not name a
// defined state decode as StateUnknown.
func StateFromCode(code int) State {
	s := State(code)
	if !s.Valid() {
		return StateUnknown
	}
	return s
}

// ParseState parses a state label (case-insensitive). Unrecognized labels
// return StateUnknown and false.
func ParseState(label string) (State, bool) {
	for s, l := range stateLabels {
		if strings.EqualFold(l, label) {
			return s, true
		}
	}
	return StateUnknown, false
}

// priority is the aggregation rank of each state; higher wins.
var priority = map[State]int{
	StateCanceled:   6,
	StateFailed:     5,
	StatePaused:     4,
	StateInProgress: 3,
	StatePending:    2,
	StateComplete:   1,
	StateUnknown:    0,
}

// Priority returns the aggregation priority of s:
// canceled > failed > paused > inProgress > pending > complete > unknown.
func (s State) Priority() int {
	return priority[StateFromCode(int(s))]
}

// overrides reports whether a child in state s overrides an otherwise
// complete set of siblings when aggregating.
func (s State) overrides() bool {
	switch s {
	case StateCanceled, StateFailed, StatePaused, StateInProgress:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are permitted from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCanceled
}

// transitions is the block-level state machine.
//
// pending -> inProgress -> {complete, failed, paused, canceled}; failed and
// paused resume to inProgress. Cancel may reach any non-terminal block.
// Nothing leaves complete or canceled.
var transitions = map[State][]State{
	StatePending:    {StateInProgress, StateCanceled},
	StateInProgress: {StateComplete, StateFailed, StatePaused, StateCanceled},
	StatePaused:     {StateInProgress, StateCanceled},
	StateFailed:     {StateInProgress, StateCanceled},
}

// CanTransition reports whether a block may move from one state to another.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Dispatchable reports whether a block in state s is picked up by a start or
// resume: pending blocks never ran, failed and paused blocks are retried.
func (s State) Dispatchable() bool {
	return s == StatePending || s == StateFailed || s == StatePaused
}
