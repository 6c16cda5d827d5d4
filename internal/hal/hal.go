// Package hal is the boundary between the logger core and the board.
// The core only sees the interfaces here; the Linux, TinyGo and fake
// boards supply the implementations.
package hal

import (
	"fmt"
	"time"
)

// Source identifies one of the three interrupt sources.
type Source uint8

const (
	SourcePresenceEdge Source = iota
	SourceTick
	SourceByteReceived

	NumSources
)

func (s Source) String() string {
	switch s {
	case SourcePresenceEdge:
		return "presence"
	case SourceTick:
		return "tick"
	case SourceByteReceived:
		return "rx"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Event is one interrupt, as raised by the board.
type Event struct {
	Source Source
	// Level is the presence line level at the edge (SourcePresenceEdge).
	Level bool
	// Byte is the received byte (SourceByteReceived).
	Byte byte

	gen uint32
}

// PowerLevel is the depth of the idle halt the main loop enters.
type PowerLevel uint8

const (
	// PowerStandby keeps the auxiliary clock running for the timer and serial peripheral.
	PowerStandby PowerLevel = iota
	// PowerDeepSleep stops every clock; only a pin edge can wake the board.
	PowerDeepSleep
)

func (p PowerLevel) String() string {
	if p == PowerDeepSleep {
		return "deep-sleep"
	}
	return "standby"
}

// AuxClockHz is the frequency of the auxiliary clock driving the timer.
const AuxClockHz = 32768

// DefaultBaudRate is the serial link rate (1 MHz / 104).
const DefaultBaudRate = 9600

// TimerConfig is a timer period in auxiliary clock cycles after the divider.
type TimerConfig struct {
	Period  uint16
	Divider uint8
}

// Duration returns the wall time between two ticks.
func (c TimerConfig) Duration() time.Duration {
	return time.Duration(c.Period) * time.Duration(c.Divider) * time.Second / AuxClockHz
}

// Timer is the periodic timer shared by every mode.
// Configure is only called while the timer is stopped.
type Timer interface {
	Stop()
	Configure(cfg TimerConfig)
	Start()
}

// Serial is the serial peripheral. It is held disabled outside a link session.
type Serial interface {
	Enable() error
	Disable() error
	// WriteByte blocks until the byte is handed to the transmitter.
	WriteByte(b byte) error
}

// Pins reads the instantaneous level of the input pins.
type Pins interface {
	Sensor() (bool, error)
	Presence() (bool, error)
}

// Flash is the non-volatile storage region: one erasable block of
// write-once 32-bit words.
type Flash interface {
	Erase() error
	Program(start int, words []uint32) error
	Word(i int) (uint32, error)
	Len() int
}

// Power enters the idle halt. On real hardware it returns when an
// interrupt fires; other boards may return immediately.
type Power interface {
	Idle(level PowerLevel)
}

// Board groups the collaborators the core drives.
type Board struct {
	Timer  Timer
	Serial Serial
	Pins   Pins
	Flash  Flash
	Power  Power
}

// Validate reports a missing collaborator.
func (b Board) Validate() error {
	switch {
	case b.Timer == nil:
		return fmt.Errorf("board: no timer")
	case b.Serial == nil:
		return fmt.Errorf("board: no serial")
	case b.Pins == nil:
		return fmt.Errorf("board: no pins")
	case b.Flash == nil:
		return fmt.Errorf("board: no flash")
	case b.Power == nil:
		return fmt.Errorf("board: no power")
	}
	return nil
}
