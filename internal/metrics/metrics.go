// Package metrics emits DogStatsD gauges and counters. Every function is
// a no-op until Init succeeds.
package metrics

import (
	"sync"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"
)

var (
	mu        sync.RWMutex
	dogstatsd *statsd.Client
)

// Init creates the client. An empty addr leaves metrics disabled.
func Init(addr, namespace string, tags []string) error {
	if addr == "" {
		log.Debug().Msg("Metrics disabled")
		return nil
	}

	c, err := statsd.New(addr)
	if err != nil {
		return err
	}
	c.Namespace = namespace
	c.Tags = tags

	mu.Lock()
	dogstatsd = c
	mu.Unlock()

	log.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Strs("tags", tags).
		Msg("Metrics initialized")
	return nil
}

// Enabled reports whether a client is configured.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return dogstatsd != nil
}

func Gauge(name string, value float64, tags ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Gauge(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
	}
}

func Count(name string, value int64, tags ...string) {
	mu.RLock()
	defer mu.RUnlock()
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Count(name, value, tags, 1); err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
	}
}

// Close flushes and closes the client.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if dogstatsd == nil {
		return
	}
	if err := dogstatsd.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close metrics client")
	}
	dogstatsd = nil
}
