//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip         *gpiocdev.Chip
	sensorLine   *gpiocdev.Line
	presenceLine *gpiocdev.Line
}

var _ Reader = (*RealReader)(nil)

// NewRealReader requests the sensor and presence lines on chip. The
// presence line watches both edges and reports them to onPresence.
func NewRealReader(chip string, pinSensor, pinPresence int, onPresence PresenceHandler) (*RealReader, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Pull-down: an unplugged link reads as absent, an unconnected mat as closed.
	sensorLine, err := c.RequestLine(pinSensor, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", pinSensor, err)
	}

	presenceLine, err := c.RequestLine(pinPresence,
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			if onPresence != nil {
				onPresence(evt.Type == gpiocdev.LineEventRisingEdge)
			}
		}))
	if err != nil {
		sensorLine.Close()
		c.Close()
		return nil, fmt.Errorf("request presence pin %d: %w", pinPresence, err)
	}

	return &RealReader{
		chip:         c,
		sensorLine:   sensorLine,
		presenceLine: presenceLine,
	}, nil
}

// Sensor returns the mat sensor level.
func (r *RealReader) Sensor() (bool, error) {
	v, err := r.sensorLine.Value()
	if err != nil {
		return false, fmt.Errorf("read sensor pin: %w", err)
	}
	return v == 1, nil
}

// Presence returns the link presence level.
func (r *RealReader) Presence() (bool, error) {
	v, err := r.presenceLine.Value()
	if err != nil {
		return false, fmt.Errorf("read presence pin: %w", err)
	}
	return v == 1, nil
}

// Close releases GPIO resources.
// Reconfigures pins to input with pull-down (matching Pi boot defaults) before
// closing to ensure clean state for system shutdown/reboot.
func (r *RealReader) Close() error {
	var errs []error

	for _, l := range []struct {
		name string
		line *gpiocdev.Line
	}{
		{"sensor", r.sensorLine},
		{"presence", r.presenceLine},
	} {
		if l.line == nil {
			continue
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l.name, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l.name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
