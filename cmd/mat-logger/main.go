// Command mat-logger runs the door-mat logger on a Linux board: GPIO inputs,
// a serial link to the host and a file-backed storage image.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/mat-logger/internal/config"
	"github.com/sweeney/mat-logger/internal/firmware"
	"github.com/sweeney/mat-logger/internal/gpio"
	"github.com/sweeney/mat-logger/internal/hal"
	"github.com/sweeney/mat-logger/internal/logging"
	"github.com/sweeney/mat-logger/internal/logic"
	"github.com/sweeney/mat-logger/internal/metrics"
	"github.com/sweeney/mat-logger/internal/serialport"
	"github.com/sweeney/mat-logger/internal/status"
	"github.com/sweeney/mat-logger/internal/web"
)

// statusInterval is how often the machine snapshot is copied to the status
// tracker and metrics.
const statusInterval = time.Second

func main() {
	configPath := flag.String("config", "/etc/mat-logger/config.yaml", "Path to YAML config")
	level := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	printState := flag.Bool("print-state", false, "Print current pin levels and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	lvl, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(lvl, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, printState bool) error {
	lc := cfg.Logger
	irq := hal.NewController(hal.DefaultQueueDepth)

	pins, err := gpio.NewRealReader(lc.Chip, lc.SensorPin, lc.PresencePin, func(level bool) {
		irq.Raise(hal.Event{Source: hal.SourcePresenceEdge, Level: level})
	})
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	if printState {
		return printPins(pins)
	}

	if err := metrics.Init(cfg.Metrics.Addr, cfg.Metrics.Namespace, cfg.Metrics.Tags); err != nil {
		log.Warn().Err(err).Msg("Metrics disabled")
	}
	defer metrics.Close()

	flash, err := hal.OpenFileFlash(lc.StorageImage, logic.StorageCapacity)
	if err != nil {
		return fmt.Errorf("open storage image: %w", err)
	}
	defer flash.Close()

	timer := hal.NewTickerTimer(irq)
	defer timer.Stop()

	port := serialport.New(lc.SerialPort, lc.Baud, irq, nil)
	defer port.Disable()

	m, err := firmware.New(hal.Board{
		Timer:  timer,
		Serial: port,
		Pins:   pins,
		Flash:  flash,
		Power:  &hal.LogPower{},
	}, irq)
	if err != nil {
		return fmt.Errorf("init machine: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Chip:         lc.Chip,
		SensorPin:    lc.SensorPin,
		PresencePin:  lc.PresencePin,
		SerialPort:   lc.SerialPort,
		StorageImage: lc.StorageImage,
		HTTPAddr:     lc.HTTPAddr,
	})

	if lc.HTTPAddr != "" {
		srv := web.New(lc.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", lc.HTTPAddr).Msg("HTTP status server listening")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	go statusLoop(ctx, m, tracker, ticker.C)

	m.Start()
	log.Info().
		Str("mode", m.Mode().String()).
		Str("serial", lc.SerialPort).
		Str("storage", lc.StorageImage).
		Msg("Started")

	err = m.Run(ctx)
	log.Info().Msg("Shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// snapshotter is the part of firmware.Machine the status loop reads.
type snapshotter interface {
	Snapshot() firmware.Snapshot
}

// statusLoop copies the machine snapshot to the tracker and metrics on every
// tick until ctx is done.
func statusLoop(ctx context.Context, m snapshotter, tracker *status.Tracker, tick <-chan time.Time) {
	var lastDropped int
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			snap := m.Snapshot()
			tracker.Update(snap)
			reportMetrics(snap, &lastDropped)
		}
	}
}

// reportMetrics emits the snapshot's gauges. The dropped total is tracked
// even with metrics disabled so enabling them later does not report a burst.
func reportMetrics(snap firmware.Snapshot, lastDropped *int) {
	dropped := snap.Log.Dropped - *lastDropped
	*lastDropped = snap.Log.Dropped
	if !metrics.Enabled() {
		return
	}

	mode := "mode:" + snap.Mode.String()
	metrics.Gauge("log.count", float64(snap.Log.Count()), mode)
	metrics.Gauge("log.stored", float64(snap.Log.Stored), mode)
	metrics.Gauge("log.buffered", float64(snap.Log.Buffered), mode)
	metrics.Gauge("irq.drops", float64(snap.IRQDrops))
	if dropped > 0 {
		metrics.Count("log.dropped", int64(dropped))
	}
}

func printPins(pins gpio.Reader) error {
	sensor, err := pins.Sensor()
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	presence, err := pins.Presence()
	if err != nil {
		return fmt.Errorf("read presence: %w", err)
	}
	link := "absent"
	if presence {
		link = "present"
	}
	fmt.Printf("Mat: %s, Link: %s\n", logic.StateFromLevel(sensor), link)
	return nil
}
