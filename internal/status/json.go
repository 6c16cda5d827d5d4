package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Mode          string     `json:"mode"`
	Mat           string     `json:"mat"`
	ClockSet      bool       `json:"clock_set"`
	Clock         string     `json:"clock,omitempty"`
	Log           LogJSON    `json:"log"`
	IRQDrops      uint32     `json:"irq_drops"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Config        ConfigJSON `json:"config"`
}

// LogJSON is the JSON representation of event log occupancy.
type LogJSON struct {
	Count    int `json:"count"`
	Stored   int `json:"stored"`
	Buffered int `json:"buffered"`
	Dropped  int `json:"dropped"`
	Capacity int `json:"capacity"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip         string `json:"chip"`
	SensorPin    int    `json:"sensor_pin"`
	PresencePin  int    `json:"presence_pin"`
	SerialPort   string `json:"serial_port"`
	StorageImage string `json:"storage_image"`
	HTTPAddr     string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	m := snap.Machine
	inner := StatusInner{
		Mode:          m.Mode.String(),
		Mat:           m.Previous.String(),
		ClockSet:      m.ClockSet,
		IRQDrops:      m.IRQDrops,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Log: LogJSON{
			Count:    m.Log.Count(),
			Stored:   m.Log.Stored,
			Buffered: m.Log.Buffered,
			Dropped:  m.Log.Dropped,
			Capacity: m.Log.Capacity,
		},
		Config: ConfigJSON{
			Chip:         snap.Config.Chip,
			SensorPin:    snap.Config.SensorPin,
			PresencePin:  snap.Config.PresencePin,
			SerialPort:   snap.Config.SerialPort,
			StorageImage: snap.Config.StorageImage,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
	if !snap.Updated {
		inner.Mode = "STARTING"
	}
	if m.ClockSet {
		inner.Clock = snap.Clock().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
