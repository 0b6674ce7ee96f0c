package engine

import "fmt"

// ConnState is the connection lifecycle state
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Disconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// transitions lists every allowed edge of the state machine
var transitions = map[ConnState][]ConnState{
	Disconnected:  {Connecting},
	Connecting:    {Connected, Disconnected},
	Connected:     {Disconnecting},
	Disconnecting: {Disconnected},
}

// CanTransition reports whether s -> to is an allowed edge
func (s ConnState) CanTransition(to ConnState) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrInvalidTransition for an edge not in the table
func checkTransition(from, to ConnState) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
