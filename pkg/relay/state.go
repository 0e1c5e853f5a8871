// ABOUTME: Playback driver state machine values
// ABOUTME: State enum with an atomic holder shared by engine goroutines
package relay

import "sync/atomic"

// State is the playback driver state
type State int32

const (
	StateIdle State = iota
	StateBuffering
	StatePlaying
	StatePaused
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type stateValue struct {
	v atomic.Int32
}

func (s *stateValue) load() State {
	return State(s.v.Load())
}

func (s *stateValue) store(state State) {
	s.v.Store(int32(state))
}

// transition moves from one state to another, failing if the current
// state is not from
func (s *stateValue) transition(from, to State) bool {
	return s.v.CompareAndSwap(int32(from), int32(to))
}
