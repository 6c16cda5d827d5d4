// Package serialport is the logger's serial peripheral on a Linux board.
// The port is only open between Enable and Disable; every received byte is
// raised on the interrupt controller as a ByteReceived event.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"

	"github.com/sweeney/mat-logger/internal/hal"
)

// DefaultBaudRate is the logger's link rate.
const DefaultBaudRate = hal.DefaultBaudRate

// pollInterval bounds how long the reader blocks before checking for Disable.
const pollInterval = 100 * time.Millisecond

// Conn is the part of serial.Port the peripheral uses.
type Conn interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port by name.
type Opener func(name string, baud int) (Conn, error)

// OpenSerial opens a real serial device with go.bug.st/serial.
func OpenSerial(name string, baud int) (Conn, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Port implements hal.Serial over a serial device.
type Port struct {
	name string
	baud int
	irq  *hal.Controller
	open Opener

	mu   sync.Mutex
	conn Conn
	done chan struct{}
}

var _ hal.Serial = (*Port)(nil)

// New creates a disabled port. A nil opener uses OpenSerial.
func New(name string, baud int, irq *hal.Controller, open Opener) *Port {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	if open == nil {
		open = OpenSerial
	}
	return &Port{name: name, baud: baud, irq: irq, open: open}
}

// Enable opens the device and starts raising received bytes.
func (p *Port) Enable() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		return nil
	}

	conn, err := p.open(p.name, p.baud)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", p.name, err)
	}
	if err := conn.SetReadTimeout(pollInterval); err != nil {
		conn.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}

	p.conn = conn
	p.done = make(chan struct{})
	go p.readLoop(conn, p.done)

	log.Debug().Str("port", p.name).Int("baud", p.baud).Msg("Serial enabled")
	return nil
}

// Disable closes the device. Bytes arriving afterwards are lost.
func (p *Port) Disable() error {
	p.mu.Lock()
	conn, done := p.conn, p.done
	p.conn, p.done = nil, nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	if err != nil {
		return fmt.Errorf("close serial port %s: %w", p.name, err)
	}
	log.Debug().Str("port", p.name).Msg("Serial disabled")
	return nil
}

// WriteByte transmits one byte.
func (p *Port) WriteByte(b byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return errors.New("serial port disabled")
	}
	if _, err := conn.Write([]byte{b}); err != nil {
		return fmt.Errorf("write serial byte: %w", err)
	}
	return nil
}

func (p *Port) readLoop(conn Conn, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			if !p.irq.Raise(hal.Event{Source: hal.SourceByteReceived, Byte: b}) {
				log.Warn().Uint8("byte", b).Msg("Dropped received byte")
			}
		}
		if err != nil {
			if !p.closed(conn) {
				log.Error().Err(err).Msg("Serial read failed")
			}
			return
		}
		if p.closed(conn) {
			return
		}
	}
}

// closed reports whether conn has been replaced or disabled.
func (p *Port) closed(conn Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != conn
}
