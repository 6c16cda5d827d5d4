//go:build !linux

package gpio

import "errors"

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(chip string, pinSensor, pinPresence int, onPresence PresenceHandler) (*RealReader, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Sensor is not implemented on non-Linux platforms.
func (r *RealReader) Sensor() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Presence is not implemented on non-Linux platforms.
func (r *RealReader) Presence() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}
