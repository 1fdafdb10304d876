package utils

import (
	"fmt"
	"time"

	"github.com/digitalself/location-agent/pkg/file"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config values like "30s" or "5m" parse.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level      string `yaml:"level"`        // Log level (debug, info, warn, error)
		File       string `yaml:"file"`         // Log file path, empty for stdout only
		MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotate after the log file reaches this size
		MaxBackups int    `yaml:"max_backups"`  // Number of rotated files to keep
		MaxAgeDays int    `yaml:"max_age_days"` // Days to retain rotated files
	} `yaml:"logging"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate (optional)
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the device identity file
	} `yaml:"identity"`

	Uploader struct {
		Kind       string   `yaml:"kind"`         // Collector transport: "mqtt" or "http"
		Topic      string   `yaml:"topic"`        // MQTT topic for location samples
		QOS        int      `yaml:"qos"`          // MQTT QoS level for location samples
		Endpoint   string   `yaml:"endpoint"`     // HTTP collector endpoint URL
		APIKeyFile string   `yaml:"api_key_file"` // Path to the collector API key file
		TokenFile  string   `yaml:"token_file"`   // Path to the collector bearer token file
		Timeout    Duration `yaml:"timeout"`      // Per-delivery timeout
	} `yaml:"uploader"`

	Queue struct {
		SpoolFile string `yaml:"spool_file"` // Path to the durable spool file
	} `yaml:"queue"`

	Tracking struct {
		Enabled           bool     `yaml:"enabled"`         // Enable/disable the sampling loop
		Interval          Duration `yaml:"interval"`        // Interval between location samples
		SensorBased       bool     `yaml:"sensor_based"`    // Use GPS sensor instead of geolocation API
		MapsAPIKey        string   `yaml:"maps_api_key"`    // Google maps API Key
		ModemIndex        int      `yaml:"modem_index"`     // mmcli modem index for cell tower lookup
		GPSDeviceBaudRate int      `yaml:"gps_baud_rate"`   // The Baud rate for GPS sensor
		GPSDevicePort     string   `yaml:"gps_device_port"` // UNIX Port where the GPS sensor is mounted
	} `yaml:"tracking"`

	Retry struct {
		OnStart  bool     `yaml:"on_start"` // Attempt pending deliveries at process start
		Interval Duration `yaml:"interval"` // Periodic retry interval, 0 disables the ticker
	} `yaml:"retry"`

	Health struct {
		Enabled  bool     `yaml:"enabled"`  // Enable/disable the queue health monitor
		Interval Duration `yaml:"interval"` // Interval between health reports
	} `yaml:"health"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
