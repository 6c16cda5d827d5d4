//go:build tinygo

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"machine"
	"sync/atomic"
	"time"

	"github.com/sweeney/mat-logger/internal/hal"
)

// pollInterval is how often the UART FIFO is drained onto the interrupt
// controller while a session is open.
const pollInterval = time.Millisecond

// pollUART moves received bytes onto irq. It blocks while the UART is
// disabled so the core can sleep outside a session.
func pollUART(irq *hal.Controller, serial *uartSerial) {
	for {
		if !serial.enabled.Load() {
			<-serial.wake
			continue
		}
		for serial.uart.Buffered() > 0 {
			b, err := serial.uart.ReadByte()
			if err != nil {
				break
			}
			irq.Raise(hal.Event{Source: hal.SourceByteReceived, Byte: b})
		}
		time.Sleep(pollInterval)
	}
}

type boardPins struct {
	sensor   machine.Pin
	presence machine.Pin
}

// newBoardPins raises presence edges straight from the pin ISR; Raise
// never blocks.
func newBoardPins(sensor, presence machine.Pin, irq *hal.Controller) *boardPins {
	p := &boardPins{sensor: sensor, presence: presence}
	sensor.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	presence.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	presence.SetInterrupt(machine.PinToggle, func(pin machine.Pin) {
		irq.Raise(hal.Event{Source: hal.SourcePresenceEdge, Level: pin.Get()})
	})
	return p
}

func (p *boardPins) Sensor() (bool, error)   { return p.sensor.Get(), nil }
func (p *boardPins) Presence() (bool, error) { return p.presence.Get(), nil }

type uartSerial struct {
	uart    *machine.UART
	baud    uint32
	enabled atomic.Bool
	wake    chan struct{}
}

func newUARTSerial(u *machine.UART, baud int) *uartSerial {
	return &uartSerial{uart: u, baud: uint32(baud), wake: make(chan struct{}, 1)}
}

func (s *uartSerial) Enable() error {
	if err := s.uart.Configure(machine.UARTConfig{BaudRate: s.baud}); err != nil {
		return fmt.Errorf("configure uart: %w", err)
	}
	for s.uart.Buffered() > 0 {
		s.uart.ReadByte()
	}
	s.enabled.Store(true)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *uartSerial) Disable() error {
	s.enabled.Store(false)
	return nil
}

func (s *uartSerial) WriteByte(b byte) error {
	if !s.enabled.Load() {
		return errors.New("uart disabled")
	}
	return s.uart.WriteByte(b)
}

// boardFlash keeps the event log in the last erase block of the on-chip
// flash, mirrored in a MemFlash for reads.
type boardFlash struct {
	mem    *hal.MemFlash
	offset int64
}

func openBoardFlash(n int) (*boardFlash, error) {
	block := machine.Flash.EraseBlockSize()
	if int64(n*4) > block {
		return nil, fmt.Errorf("log of %d words exceeds erase block of %d bytes", n, block)
	}
	f := &boardFlash{
		mem:    hal.NewMemFlash(n),
		offset: machine.Flash.Size() - block,
	}

	buf := make([]byte, n*4)
	if _, err := machine.Flash.ReadAt(buf, f.offset); err != nil {
		return nil, fmt.Errorf("read flash: %w", err)
	}
	for i := 0; i < n; i++ {
		w := binary.LittleEndian.Uint32(buf[i*4:])
		if w == hal.ErasedWord {
			continue
		}
		if err := f.mem.Program(i, []uint32{w}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *boardFlash) Erase() error {
	if err := machine.Flash.EraseBlocks(f.offset/machine.Flash.EraseBlockSize(), 1); err != nil {
		return fmt.Errorf("erase flash: %w", err)
	}
	return f.mem.Erase()
}

func (f *boardFlash) Program(start int, words []uint32) error {
	if err := f.mem.Program(start, words); err != nil {
		return err
	}
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	if _, err := machine.Flash.WriteAt(buf, f.offset+int64(start*4)); err != nil {
		return fmt.Errorf("program flash: %w", err)
	}
	return nil
}

func (f *boardFlash) Word(i int) (uint32, error) { return f.mem.Word(i) }
func (f *boardFlash) Len() int                   { return f.mem.Len() }

// sleepPower leaves idling to the TinyGo scheduler, which sleeps the core
// while every goroutine is blocked.
type sleepPower struct{}

func (sleepPower) Idle(hal.PowerLevel) {}
