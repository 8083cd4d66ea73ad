package transmission

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jmleroy/ce02-hass/internal/controller"
	"github.com/jmleroy/ce02-hass/internal/mqtt"
)

// MQTTTransmitter publishes charge-state snapshots to Home Assistant via
// MQTT discovery. All entities share one retained JSON state topic; the
// charging switch and the SoC number additionally carry command topics the
// host writes to (see internal/commands).
type MQTTTransmitter struct {
	client            *mqtt.Client
	deviceID          string
	deviceName        string
	discoveryPrefix   string
	logger            *logrus.Logger
	publishedEntities map[string]bool // Tracks published discovery configs
}

// Entity IDs shared with the command listener.
const (
	EntityChargingSwitch = "charging_toggle"
	EntitySocNumber      = "soc"
)

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration.
type HADiscoveryConfig struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Device            HADevice `json:"device"`
	AvailabilityTopic string   `json:"availability_topic"`
	Icon              string   `json:"icon,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Min               *float64 `json:"min,omitempty"`
	Max               *float64 `json:"max,omitempty"`
	Step              *float64 `json:"step,omitempty"`
	Mode              string   `json:"mode,omitempty"`
}

// HADevice represents the device information for Home Assistant.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// EntityConfig defines the discovery configuration for each entity.
type EntityConfig struct {
	Name          string
	EntityID      string
	EntityType    string // "sensor", "binary_sensor", "switch", "number"
	DeviceClass   string
	Unit          string
	Icon          string
	StateClass    string
	Category      string
	ValueTemplate string
	Commandable   bool // entity carries a command topic
}

// NewMQTTTransmitter creates a new MQTT transmitter.
func NewMQTTTransmitter(client *mqtt.Client, deviceID, deviceName, discoveryPrefix string, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:            client,
		deviceID:          deviceID,
		deviceName:        deviceName,
		discoveryPrefix:   discoveryPrefix,
		logger:            logger,
		publishedEntities: make(map[string]bool),
	}
}

// entityConfigs is the authoritative list of entities exposed to Home
// Assistant, mirroring the switch, number, binary sensor and sensors of the
// simulated charge tracker.
func (t *MQTTTransmitter) entityConfigs() []EntityConfig {
	return []EntityConfig{
		{
			Name:          "Charging Toggle",
			EntityID:      EntityChargingSwitch,
			EntityType:    "switch",
			Icon:          "mdi:power-plug",
			ValueTemplate: "{{ 'ON' if value_json.is_charging else 'OFF' }}",
			Commandable:   true,
		},
		{
			Name:          "SoC",
			EntityID:      EntitySocNumber,
			EntityType:    "number",
			DeviceClass:   "battery",
			Unit:          "%",
			ValueTemplate: "{{ value_json.soc | round(1) }}",
			Commandable:   true,
		},
		{
			Name:          "Charging",
			EntityID:      "charging",
			EntityType:    "binary_sensor",
			DeviceClass:   "battery_charging",
			ValueTemplate: "{{ 'ON' if value_json.is_charging else 'OFF' }}",
		},
		{
			Name:          "Charge Power",
			EntityID:      "charge_power",
			EntityType:    "sensor",
			DeviceClass:   "power",
			Unit:          "kW",
			StateClass:    "measurement",
			ValueTemplate: "{{ value_json.charge_power_kw }}",
		},
		{
			Name:          "Energy Consumed",
			EntityID:      "energy_consumed",
			EntityType:    "sensor",
			DeviceClass:   "energy",
			Unit:          "kWh",
			Icon:          "mdi:flash",
			StateClass:    "total_increasing",
			ValueTemplate: "{{ value_json.energy_consumed_kwh | round(3) }}",
		},
		{
			Name:          "Elapsed Charging Time",
			EntityID:      "elapsed_charging_time",
			EntityType:    "sensor",
			DeviceClass:   "duration",
			Unit:          "s",
			Icon:          "mdi:timer-sand",
			StateClass:    "measurement",
			ValueTemplate: "{{ value_json.elapsed_seconds | default(0) }}",
		},
		{
			Name:          "Time To 80%",
			EntityID:      "time_to_80_pct",
			EntityType:    "sensor",
			DeviceClass:   "duration",
			Unit:          "s",
			Icon:          "mdi:timer-arrow-right-outline",
			ValueTemplate: "{{ value_json.remaining_to_80_seconds | default(0) }}",
		},
		{
			Name:          "Time To 100%",
			EntityID:      "time_to_100_pct",
			EntityType:    "sensor",
			DeviceClass:   "duration",
			Unit:          "s",
			Icon:          "mdi:timer-check-outline",
			ValueTemplate: "{{ value_json.remaining_to_100_seconds | default(0) }}",
		},
		{
			Name:          "Time At 80%",
			EntityID:      "time_at_80_pct",
			EntityType:    "sensor",
			DeviceClass:   "timestamp",
			ValueTemplate: "{{ value_json.time_at_80 | default('') }}",
		},
		{
			Name:          "Time At 100%",
			EntityID:      "time_at_100_pct",
			EntityType:    "sensor",
			DeviceClass:   "timestamp",
			ValueTemplate: "{{ value_json.time_at_100 | default('') }}",
		},
		{
			Name:          "SoC At Charge Start",
			EntityID:      "soc_at_charge_start",
			EntityType:    "sensor",
			DeviceClass:   "battery",
			Unit:          "%",
			Category:      "diagnostic",
			ValueTemplate: "{{ value_json.soc_at_charge_start | default(0) }}",
		},
		{
			Name:          "Charge Start Time",
			EntityID:      "charge_start_time",
			EntityType:    "sensor",
			DeviceClass:   "timestamp",
			Category:      "diagnostic",
			ValueTemplate: "{{ value_json.charge_start_time | default('') }}",
		},
	}
}

func (t *MQTTTransmitter) device() HADevice {
	return HADevice{
		Identifiers:  []string{fmt.Sprintf("ce02_%s", t.deviceID)},
		Name:         t.deviceName,
		Model:        "CE-02 Simulated",
		Manufacturer: "BMW CE-02 Tracker",
		SWVersion:    "1.0.0",
	}
}

func (t *MQTTTransmitter) baseTopic() string {
	return fmt.Sprintf("ce02/%s", t.deviceID)
}

// discoveryConfig assembles the discovery payload for a single entity.
func (t *MQTTTransmitter) discoveryConfig(e EntityConfig) HADiscoveryConfig {
	base := t.baseTopic()
	cfg := HADiscoveryConfig{
		Name:              e.Name,
		UniqueID:          fmt.Sprintf("%s_%s", t.deviceID, e.EntityID),
		StateTopic:        fmt.Sprintf("%s/state", base),
		ValueTemplate:     e.ValueTemplate,
		DeviceClass:       e.DeviceClass,
		UnitOfMeasurement: e.Unit,
		Device:            t.device(),
		AvailabilityTopic: fmt.Sprintf("%s/availability", base),
		Icon:              e.Icon,
		StateClass:        e.StateClass,
		EntityCategory:    e.Category,
	}

	if e.Commandable {
		cfg.CommandTopic = fmt.Sprintf("%s/%s/set", base, e.EntityID)
	}
	switch e.EntityType {
	case "switch":
		cfg.PayloadOn = "ON"
		cfg.PayloadOff = "OFF"
	case "number":
		min, max, step := 0.0, 100.0, 1.0
		cfg.Min = &min
		cfg.Max = &max
		cfg.Step = &step
		cfg.Mode = "slider"
	}
	return cfg
}

func (t *MQTTTransmitter) discoveryTopic(e EntityConfig) string {
	return fmt.Sprintf("%s/%s/ce02_%s/%s/config",
		t.discoveryPrefix, e.EntityType, t.deviceID, e.EntityID)
}

// publishDiscoveryConfigs ensures every entity has its discovery config
// published; each config is retained and published at most once per run.
func (t *MQTTTransmitter) publishDiscoveryConfigs() error {
	for _, e := range t.entityConfigs() {
		uniqueID := fmt.Sprintf("%s_%s", t.deviceID, e.EntityID)
		if t.publishedEntities[uniqueID] {
			continue
		}

		payload, err := json.Marshal(t.discoveryConfig(e))
		if err != nil {
			return fmt.Errorf("failed to marshal discovery config for %s: %w", e.Name, err)
		}
		topic := t.discoveryTopic(e)
		if err := t.client.Publish(topic, payload, true); err != nil {
			t.logger.WithError(err).WithField("entity", e.Name).Error("Failed to publish discovery config")
			continue // retried on the next transmit
		}

		t.logger.WithFields(logrus.Fields{
			"entity_name": e.Name,
			"entity_id":   e.EntityID,
			"topic":       topic,
		}).Info("Published entity discovery config")
		t.publishedEntities[uniqueID] = true
	}
	return nil
}

// Transmit sends a charge-state snapshot to MQTT.
func (t *MQTTTransmitter) Transmit(r *controller.Reading) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	if err := t.publishDiscoveryConfigs(); err != nil {
		// Log error but don't block transmission
		t.logger.WithError(err).Error("Failed to publish Home Assistant discovery configs")
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to build state payload: %w", err)
	}

	topic := fmt.Sprintf("%s/state", t.baseTopic())
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish charge state to %s: %w", topic, err)
	}

	if err := t.client.PublishAvailability(true); err != nil {
		return fmt.Errorf("failed to publish availability: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"topic": topic,
		"soc":   r.Soc,
	}).Debug("Published charge state")
	return nil
}

// IsConnected checks if the MQTT client is connected.
func (t *MQTTTransmitter) IsConnected() bool {
	return t.client.IsConnected()
}
