// Package logic contains the pure core of the mat logger: the clock, the
// event record codec, the two-tier event log and the recorder.
// This package has NO hardware dependencies (no GPIO, serial, timers).
// Non-volatile storage is injected through the Storage interface.
package logic

// SensorState represents the debounced state of the mat sensor.
type SensorState uint8

const (
	StateClosed SensorState = iota
	StateOpen
	// StateUnknown is only held immediately after entering Sensing, so the
	// first real reading is always recorded.
	StateUnknown
)

// StateFromLevel maps a raw sensor pin level to a state.
// High (true) = Open, low (false) = Closed.
func StateFromLevel(high bool) SensorState {
	if high {
		return StateOpen
	}
	return StateClosed
}

func (s SensorState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Stats summarises the occupancy of an EventLog.
type Stats struct {
	Stored   int // records in non-volatile storage
	Buffered int // records in the RAM buffer
	Dropped  int // records refused because both tiers were full
	Capacity int // total capacity of both tiers
}

// Count returns the total logical record count.
func (s Stats) Count() int {
	return s.Stored + s.Buffered
}
