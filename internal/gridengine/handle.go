package gridengine

import "fmt"

type HandleState int

const (
	HandleSubmitted HandleState = iota
	HandleActive
	HandleTerminal
)

func (s HandleState) String() string {
	switch s {
	case HandleSubmitted:
		return "Submitted"
	case HandleActive:
		return "Active"
	case HandleTerminal:
		return "Terminal"
	default:
		return fmt.Sprintf("HandleState(%d)", int(s))
	}
}

// JobHandle identifies a job in the scheduler. Its state only ever moves forward.
type JobHandle struct {
	Id    string
	State HandleState
}

// Advance returns a copy of h in state s, unless h is already past s.
func (h JobHandle) Advance(s HandleState) JobHandle {
	if s > h.State {
		h.State = s
	}
	return h
}

// Status is the scheduler's answer to a status query.
type Status int

const (
	// StatusUnknown means the query output could not be classified. Callers treat it as still active.
	StatusUnknown Status = iota
	StatusActive
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
