package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jmleroy/ce02-hass/internal/chargemodel"
)

// Config holds all configuration options for the CE02-HASS daemon.
type Config struct {
	// MQTT Configuration
	MQTTUrl         string `json:"mqtt_url"`         // MQTT URL (supports both WebSocket and standard MQTT)
	DiscoveryPrefix string `json:"discovery_prefix"` // Home Assistant discovery prefix

	// Device Configuration
	DeviceID   string `json:"device_id"`   // Unique device identifier
	DeviceName string `json:"device_name"` // Display name in Home Assistant

	// Simulation
	Battery         chargemodel.Params `json:"battery"`          // Two-phase charging curve
	StateFile       string             `json:"state_file"`       // Charge session persistence path
	RefreshInterval time.Duration      `json:"refresh_interval"` // Charge state reconciliation cadence

	// Transmission
	MQTTInterval        time.Duration `json:"mqtt_interval"`         // Publish cadence while state changes
	ForceUpdateInterval time.Duration `json:"force_update_interval"` // Publish even when unchanged (0 = disabled)

	// Application Configuration
	Verbose bool `json:"verbose"` // Enable verbose logging
}

// Defaults returns a configuration with sensible defaults.
func Defaults() Config {
	return Config{
		DiscoveryPrefix: "homeassistant",
		DeviceID:        "ce02",
		DeviceName:      "BMW CE-02",
		Battery:         chargemodel.DefaultParams(),
		StateFile:       DefaultStateFile,
		RefreshInterval: DefaultRefreshInterval,
		MQTTInterval:    DefaultMQTTInterval,
	}
}

// Load layers an optional yaml/json config file and CE02_HASS_* environment
// variables over the defaults. path may be empty.
func Load(path string) (Config, error) {
	cfg := Defaults()
	k := koanf.New(".")

	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return cfg, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// Environment overrides: CE02_HASS_MQTT_URL -> mqtt_url,
	// CE02_HASS_BATTERY__CAPACITY_KWH -> battery.capacity_kwh.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("device ID is required")
	}

	// MQTT validation - support both WebSocket and standard MQTT protocols.
	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.MQTTInterval <= 0 {
		return fmt.Errorf("MQTT interval must be positive")
	}
	if c.ForceUpdateInterval < 0 {
		return fmt.Errorf("force update interval must not be negative")
	}

	if err := c.Battery.Validate(); err != nil {
		return fmt.Errorf("battery config: %w", err)
	}
	return nil
}

// HasMQTT returns true if MQTT is configured.
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}
