//go:build tinygo

//go:generate tinygo flash -target=pico

// Command mat-firmware is the logger built with TinyGo for an RP2040 board.
package main

import (
	"context"
	"machine"

	"github.com/sweeney/mat-logger/internal/firmware"
	"github.com/sweeney/mat-logger/internal/hal"
	"github.com/sweeney/mat-logger/internal/logic"
)

const (
	pinSensor   = machine.Pin(17)
	pinPresence = machine.Pin(27)
)

var uart = machine.UART0

func main() {
	irq := hal.NewController(hal.DefaultQueueDepth)

	pins := newBoardPins(pinSensor, pinPresence, irq)
	serial := newUARTSerial(uart, hal.DefaultBaudRate)
	flash, err := openBoardFlash(logic.StorageCapacity)
	if err != nil {
		halt(err)
	}

	m, err := firmware.New(hal.Board{
		Timer:  hal.NewTickerTimer(irq),
		Serial: serial,
		Pins:   pins,
		Flash:  flash,
		Power:  sleepPower{},
	}, irq)
	if err != nil {
		halt(err)
	}

	go pollUART(irq, serial)

	m.Start()
	m.Run(context.Background())
}

// halt reports a fatal setup error on the console and lights the LED.
func halt(err error) {
	println("mat-firmware:", err.Error())
	machine.LED.Configure(machine.PinConfig{Mode: machine.PinOutput})
	machine.LED.High()
	select {}
}
