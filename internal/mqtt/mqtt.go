// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/mat-logger/internal/logic"
)

// DefaultTopic is the MQTT topic for mat transitions.
const DefaultTopic = "home/mat/logger/events"

// SystemTopic returns the topic for system events that accompanies topic.
func SystemTopic(topic string) string {
	return topic + "/system"
}

// Publisher publishes downloaded records to MQTT.
type Publisher interface {
	// Publish sends one mat transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(rec logic.Record) error

	// PublishSystem sends a system event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a host tool event (e.g., download, clock set).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g., "DOWNLOAD", "CLOCK_SET", "LINK_FAILED"
	Reason    string // error text (failures only)
	Records   int    // records downloaded (DOWNLOAD only)
	Inserted  int    // records new to the archive (DOWNLOAD only)
	Retained  bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Mat MatPayload `json:"mat"`
}

// MatPayload contains the transition details.
type MatPayload struct {
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
}

// FormatPayload creates the JSON payload for a record.
func FormatPayload(rec logic.Record) ([]byte, error) {
	payload := Payload{
		Mat: MatPayload{
			Timestamp: rec.Time().Format(time.RFC3339),
			State:     rec.State().String(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Records   *int   `json:"records,omitempty"`
	Inserted  *int   `json:"inserted,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// Record counts are only included for DOWNLOAD events.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	inner := SystemPayloadInner{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}
	if event.Event == EventDownload {
		inner.Records = &event.Records
		inner.Inserted = &event.Inserted
	}
	return json.Marshal(SystemPayload{System: inner})
}

// System event names.
const (
	EventDownload   = "DOWNLOAD"
	EventClockSet   = "CLOCK_SET"
	EventLinkFailed = "LINK_FAILED"
)
