package pump

import "fmt"

// State is the pump lifecycle. A pump is created Idle, runs Active, parks in
// Draining while the sink is at capacity, and ends in exactly one of
// Finished or Failed.
type State int32

const (
	Idle State = iota
	Active
	Draining
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Active:
		return "Active"
	case Draining:
		return "Draining"
	case Finished:
		return "Finished"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// IsTerminal reports whether no further chunks will be requested or delivered.
func (s State) IsTerminal() bool {
	return s == Finished || s == Failed
}
