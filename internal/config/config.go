// Package config loads the YAML configuration shared by the logger and host binaries.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Host    HostConfig    `yaml:"host"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// LoggerConfig configures the Linux build of the logger.
type LoggerConfig struct {
	Chip         string `yaml:"chip"`
	SensorPin    int    `yaml:"sensor_pin"`
	PresencePin  int    `yaml:"presence_pin"`
	SerialPort   string `yaml:"serial_port"`
	Baud         int    `yaml:"baud"`
	StorageImage string `yaml:"storage_image"` // flash image file
	HTTPAddr     string `yaml:"http_addr"`     // status page; empty disables
}

// HostConfig configures the host rendezvous tool.
type HostConfig struct {
	SerialPort         string        `yaml:"serial_port"`
	Baud               int           `yaml:"baud"`
	ResponseTimeout    time.Duration `yaml:"response_timeout"`
	SettleDelay        time.Duration `yaml:"settle_delay"` // wait for the logger to open its side of the link
	Archive            string        `yaml:"archive"`      // SQLite path
	ResetAfterDownload bool          `yaml:"reset_after_download"`
}

// MQTTConfig configures republishing. An empty broker disables it.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	Topic      string `yaml:"topic"`
	BufferSize int    `yaml:"buffer_size"`
}

// MetricsConfig configures DogStatsD. An empty addr disables it.
type MetricsConfig struct {
	Addr      string   `yaml:"addr"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty logs to stderr
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Logger: LoggerConfig{
			Chip:         "gpiochip0",
			SensorPin:    17,
			PresencePin:  27,
			SerialPort:   "/dev/ttyAMA0",
			Baud:         9600,
			StorageImage: "/var/lib/mat-logger/flash.img",
			HTTPAddr:     ":8080",
		},
		Host: HostConfig{
			SerialPort:      "/dev/ttyUSB0",
			Baud:            9600,
			ResponseTimeout: 500 * time.Millisecond,
			SettleDelay:     time.Second,
			Archive:         "mat-archive.db",
		},
		MQTT: MQTTConfig{
			ClientID:   "mat-host",
			Topic:      "home/mat/logger/events",
			BufferSize: 256,
		},
		Metrics: MetricsConfig{
			Namespace: "mat.",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills zero values that have no meaningful zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Logger.Chip == "" {
		c.Logger.Chip = def.Logger.Chip
	}
	if c.Logger.SerialPort == "" {
		c.Logger.SerialPort = def.Logger.SerialPort
	}
	if c.Logger.Baud == 0 {
		c.Logger.Baud = def.Logger.Baud
	}
	if c.Logger.StorageImage == "" {
		c.Logger.StorageImage = def.Logger.StorageImage
	}

	if c.Host.SerialPort == "" {
		c.Host.SerialPort = def.Host.SerialPort
	}
	if c.Host.Baud == 0 {
		c.Host.Baud = def.Host.Baud
	}
	if c.Host.ResponseTimeout == 0 {
		c.Host.ResponseTimeout = def.Host.ResponseTimeout
	}
	if c.Host.Archive == "" {
		c.Host.Archive = def.Host.Archive
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = def.MQTT.BufferSize
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
}
