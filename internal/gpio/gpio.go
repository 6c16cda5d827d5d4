// Package gpio provides the mat sensor and link presence inputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the input pins. It satisfies hal.Pins.
type Reader interface {
	// Sensor returns the mat sensor level: true = open.
	Sensor() (bool, error)

	// Presence returns the link presence level: true = host attached.
	Presence() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// PresenceHandler is called from the GPIO event goroutine on every edge of
// the presence line, with the level after the edge.
type PresenceHandler func(level bool)

// Pin definitions (BCM numbering)
const (
	PinSensor   = 17
	PinPresence = 27
)

// DefaultChip is the GPIO chip the pins live on.
const DefaultChip = "gpiochip0"
