// Package firmware is the logger's mode state machine, serial command
// protocol and main loop, driven by events from a hal.Controller.
//
// All state is owned by a Machine and mutated only by its handlers, which
// run one at a time on the goroutine calling Run.
package firmware

import "github.com/sweeney/mat-logger/internal/hal"

// Mode is the operating mode of the logger.
type Mode uint8

const (
	ModeIdle Mode = iota
	ModeAwaitingLink
	ModeCommunicating
	ModeLinkClosing
	ModeSensing
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeAwaitingLink:
		return "AWAITING_LINK"
	case ModeCommunicating:
		return "COMMUNICATING"
	case ModeLinkClosing:
		return "LINK_CLOSING"
	case ModeSensing:
		return "SENSING"
	default:
		return "UNKNOWN"
	}
}

// PowerLevel is the idle depth for the mode. Only the presence edge can
// wake an Idle board, so it sleeps deepest.
func (m Mode) PowerLevel() hal.PowerLevel {
	if m == ModeIdle {
		return hal.PowerDeepSleep
	}
	return hal.PowerStandby
}

// Timer settings per mode, in 4096 Hz ticks (32768 Hz / 8).
var (
	awaitLinkTimer   = hal.TimerConfig{Period: 819, Divider: 8}   // ~200ms
	linkClosingTimer = hal.TimerConfig{Period: 4096, Divider: 8}  // 1s
	sensingTimer     = hal.TimerConfig{Period: 61440, Divider: 8} // 15s
	dropCheckTimer   = awaitLinkTimer
)

const (
	// linkStableTicks is how many AwaitingLink ticks the presence line must stay high.
	linkStableTicks = 2
	// releaseStableTicks is how many LinkClosing ticks the presence line must stay low.
	releaseStableTicks = 2
	// dropStableTicks is how many Communicating ticks the presence line must stay low.
	dropStableTicks = 2

	// Seconds added to the clock per tick.
	linkClosingAdvance = 1
	sensingAdvance     = 15
)
