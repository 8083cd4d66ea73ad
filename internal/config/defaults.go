package config

import "time"

// Central place for application-wide timing constants and other defaults.
// Changing a value here immediately affects all components that import
// github.com/jmleroy/ce02-hass/internal/config.

const (
	// How often the charge state is reconciled while the daemon runs.
	// Correctness does not depend on it; it only bounds how promptly a
	// finished charge is observed.
	DefaultRefreshInterval = 60 * time.Second

	// Transmission interval towards Home Assistant.
	DefaultMQTTInterval = 60 * time.Second

	// Operation time-outs (to avoid blocking goroutines)
	MQTTTimeout = 5 * time.Second // MQTT publish/subscribe

	// Where the charge session is persisted between runs.
	DefaultStateFile = "ce02-hass-state.json"

	// Prefix for environment variable overrides, e.g. CE02_HASS_MQTT_URL
	// maps to the mqtt_url key.
	EnvPrefix = "CE02_HASS_"
)
