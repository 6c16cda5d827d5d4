// Command mat-host is run when the logger is docked: it downloads the event
// log, archives it, republishes it to MQTT and sets the logger's clock.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/mat-logger/internal/archive"
	"github.com/sweeney/mat-logger/internal/config"
	"github.com/sweeney/mat-logger/internal/link"
	"github.com/sweeney/mat-logger/internal/logging"
	"github.com/sweeney/mat-logger/internal/logic"
	"github.com/sweeney/mat-logger/internal/metrics"
	"github.com/sweeney/mat-logger/internal/mqtt"
)

func main() {
	configPath := flag.String("config", "/etc/mat-logger/config.yaml", "Path to YAML config")
	level := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	port := flag.String("port", "", "Override serial port")
	reset := flag.Bool("reset", false, "Clear the logger after a successful download")
	writeConfig := flag.String("write-config", "", "Write the effective config to this path and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *level, *port, *reset)

	if *writeConfig != "" {
		if err := cfg.Save(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote config to %s\n", *writeConfig)
		return
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

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("Session failed")
		os.Exit(1)
	}
}

// applyOverrides applies the command-line flags on top of the loaded config.
func applyOverrides(cfg *config.Config, level, port string, reset bool) {
	if level != "" {
		cfg.Log.Level = level
	}
	if port != "" {
		cfg.Host.SerialPort = port
	}
	if reset {
		cfg.Host.ResetAfterDownload = true
	}
}

func run(cfg *config.Config) error {
	hc := cfg.Host

	if err := metrics.Init(cfg.Metrics.Addr, cfg.Metrics.Namespace, cfg.Metrics.Tags); err != nil {
		log.Warn().Err(err).Msg("Metrics disabled")
	}
	defer metrics.Close()

	store, err := archive.Open(hc.Archive)
	if err != nil {
		return err
	}
	defer store.Close()

	var pub mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Topic:      cfg.MQTT.Topic,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			log.Warn().Err(err).Msg("MQTT disabled")
		} else {
			pub = p
			defer func() {
				if err := p.Close(); err != nil {
					log.Warn().Err(err).Msg("MQTT close")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := link.Open(hc.SerialPort, hc.Baud, hc.ResponseTimeout)
	if err != nil {
		publishFailure(pub, time.Now(), err)
		return err
	}
	defer client.Close()

	// The logger needs a few of its link-stable ticks before it answers.
	select {
	case <-time.After(hc.SettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	return session(ctx, client, store, pub, hc.ResetAfterDownload, time.Now)
}

// device is the part of link.Client a session drives.
type device interface {
	ReadAll() ([]logic.Record, error)
	Reset() error
	SetClock(t time.Time) error
}

// archiver is the part of archive.Store a session writes to.
type archiver interface {
	SaveSession(ctx context.Context, at time.Time, recs []logic.Record) (int, error)
}

// session downloads and archives the log, republishes it, optionally clears
// the logger and finally sets its clock, which also ends the session on the
// logger side. A partial download is archived and the clock still set, but
// the logger is not cleared and the session reports an error. pub may be nil.
func session(ctx context.Context, dev device, store archiver, pub mqtt.Publisher, reset bool, now func() time.Time) error {
	recs, err := dev.ReadAll()
	var incomplete error
	switch {
	case errors.Is(err, link.ErrIncomplete):
		// Keep what arrived, but never clear a log that was not fully read.
		incomplete = fmt.Errorf("download log: %w", err)
	case err != nil:
		err = fmt.Errorf("download log: %w", err)
		publishFailure(pub, now(), err)
		return err
	}

	at := now()
	inserted, err := store.SaveSession(ctx, at, recs)
	if err != nil {
		// The logger keeps its log; the next session downloads it again.
		return fmt.Errorf("archive session: %w", err)
	}
	log.Info().Int("records", len(recs)).Int("inserted", inserted).Msg("Downloaded log")

	metrics.Count("host.downloaded", int64(len(recs)))
	metrics.Count("host.inserted", int64(inserted))
	metrics.Gauge("host.log_count", float64(len(recs)))

	if pub != nil {
		for _, rec := range recs {
			if err := pub.Publish(rec); err != nil {
				log.Warn().Err(err).Stringer("record", rec).Msg("Publish error")
			}
		}
		publishSystem(pub, mqtt.SystemEvent{
			Timestamp: at,
			Event:     mqtt.EventDownload,
			Records:   len(recs),
			Inserted:  inserted,
			Retained:  true,
		})
	}

	if reset && incomplete != nil {
		log.Warn().Msg("Download incomplete, not clearing logger")
	} else if reset {
		if err := dev.Reset(); err != nil {
			err = fmt.Errorf("reset logger: %w", err)
			publishFailure(pub, now(), err)
			return err
		}
		log.Info().Msg("Logger cleared")
	}

	t := now()
	if err := dev.SetClock(t); err != nil {
		err = fmt.Errorf("set clock: %w", err)
		publishFailure(pub, now(), err)
		return err
	}
	log.Info().Time("clock", t.UTC()).Msg("Logger clock set")
	metrics.Count("host.clock_set", 1)

	if pub != nil {
		publishSystem(pub, mqtt.SystemEvent{Timestamp: t, Event: mqtt.EventClockSet})
	}

	if incomplete != nil {
		publishFailure(pub, now(), incomplete)
		return incomplete
	}
	return nil
}

func publishFailure(pub mqtt.Publisher, at time.Time, err error) {
	metrics.Count("host.link_failed", 1)
	if pub == nil {
		return
	}
	publishSystem(pub, mqtt.SystemEvent{
		Timestamp: at,
		Event:     mqtt.EventLinkFailed,
		Reason:    err.Error(),
		Retained:  true,
	})
}

func publishSystem(pub mqtt.Publisher, ev mqtt.SystemEvent) {
	if err := pub.PublishSystem(ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Event).Msg("Failed to publish system event")
	}
}
