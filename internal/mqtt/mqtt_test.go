package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/mat-logger/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	ts := time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)
	rec := logic.Encode(logic.StateOpen, uint32(ts.Unix()))

	payload, err := FormatPayload(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Mat.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", parsed.Mat.Timestamp)
	}
	if parsed.Mat.State != "OPEN" {
		t.Errorf("unexpected state: %s", parsed.Mat.State)
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	rec := logic.Encode(logic.StateClosed, 1767225600)

	payload, err := FormatPayload(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"mat":{"timestamp":"2026-01-01T00:00:00Z","state":"CLOSED"}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestSystemTopic(t *testing.T) {
	if got := SystemTopic(DefaultTopic); got != "home/mat/logger/events/system" {
		t.Errorf("unexpected system topic: %s", got)
	}
}

func TestFormatSystemPayloadDownload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Event:     EventDownload,
		Records:   12,
		Inserted:  0,
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Zero inserted is still reported for downloads
	want := `{"system":{"timestamp":"2026-10-19T08:00:00Z","event":"DOWNLOAD","records":12,"inserted":0}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayloadFailure(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC),
		Event:     EventLinkFailed,
		Reason:    "no response from logger",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"system":{"timestamp":"2026-10-19T08:00:00Z","event":"LINK_FAILED","reason":"no response from logger"}}`
	if string(payload) != want {
		t.Errorf("payload mismatch:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 10, 19, 10, 0, 0, 0, loc),
		Event:     EventClockSet,
	}

	payload, _ := FormatSystemPayload(event)
	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-10-19T08:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
	if parsed.System.Records != nil {
		t.Error("records should be omitted for non-download events")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	recs := []logic.Record{
		logic.Encode(logic.StateOpen, 100),
		logic.Encode(logic.StateClosed, 115),
	}
	for _, r := range recs {
		if err := f.Publish(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if len(f.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(f.Records))
	}
	if f.Records[1] != recs[1] {
		t.Errorf("records out of order: %v", f.Records)
	}
	if len(f.Payloads) != 2 {
		t.Errorf("expected 2 payloads, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")

	if err := f.Publish(logic.Encode(logic.StateOpen, 1)); err == nil {
		t.Error("expected error")
	}
	if len(f.Records) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestFakePublisherSystemEvents(t *testing.T) {
	f := NewFakePublisher()
	event := SystemEvent{Timestamp: time.Now(), Event: EventDownload, Records: 3}

	if err := f.PublishSystem(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.SystemEvents) != 1 || f.SystemEvents[0].Records != 3 {
		t.Errorf("unexpected system events: %+v", f.SystemEvents)
	}

	f.PublishSystemError = errors.New("fail")
	if err := f.PublishSystem(event); err == nil {
		t.Error("expected error")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Encode(logic.StateOpen, 1))
	f.PublishSystem(SystemEvent{Event: EventClockSet})
	f.Close()
	f.Connected = true

	f.Reset()

	if len(f.Records) != 0 || len(f.Payloads) != 0 || len(f.SystemEvents) != 0 {
		t.Error("expected recorded data to be cleared")
	}
	if f.Closed || f.Connected {
		t.Error("expected flags to be cleared")
	}
}
