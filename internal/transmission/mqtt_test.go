package transmission

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmleroy/ce02-hass/internal/controller"
)

func newTestTransmitter() *MQTTTransmitter {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewMQTTTransmitter(nil, "garage", "BMW CE-02", "homeassistant", logger)
}

func TestEntityConfigsCoverReportedFields(t *testing.T) {
	tx := newTestTransmitter()
	byID := map[string]EntityConfig{}
	for _, e := range tx.entityConfigs() {
		byID[e.EntityID] = e
	}

	for _, id := range []string{
		EntityChargingSwitch, EntitySocNumber, "charging", "charge_power",
		"energy_consumed", "elapsed_charging_time", "time_to_80_pct",
		"time_to_100_pct", "time_at_80_pct", "time_at_100_pct",
		"soc_at_charge_start", "charge_start_time",
	} {
		assert.Contains(t, byID, id)
	}

	assert.True(t, byID[EntityChargingSwitch].Commandable)
	assert.True(t, byID[EntitySocNumber].Commandable)
	assert.False(t, byID["charging"].Commandable)
}

func TestDiscoveryConfigSwitch(t *testing.T) {
	tx := newTestTransmitter()
	var sw EntityConfig
	for _, e := range tx.entityConfigs() {
		if e.EntityID == EntityChargingSwitch {
			sw = e
		}
	}

	cfg := tx.discoveryConfig(sw)
	assert.Equal(t, "garage_charging_toggle", cfg.UniqueID)
	assert.Equal(t, "ce02/garage/state", cfg.StateTopic)
	assert.Equal(t, "ce02/garage/charging_toggle/set", cfg.CommandTopic)
	assert.Equal(t, "ce02/garage/availability", cfg.AvailabilityTopic)
	assert.Equal(t, "ON", cfg.PayloadOn)
	assert.Equal(t, "OFF", cfg.PayloadOff)
	assert.Equal(t, "homeassistant/switch/ce02_garage/charging_toggle/config", tx.discoveryTopic(sw))
}

func TestDiscoveryConfigNumber(t *testing.T) {
	tx := newTestTransmitter()
	var num EntityConfig
	for _, e := range tx.entityConfigs() {
		if e.EntityID == EntitySocNumber {
			num = e
		}
	}

	cfg := tx.discoveryConfig(num)
	require.NotNil(t, cfg.Min)
	require.NotNil(t, cfg.Max)
	require.NotNil(t, cfg.Step)
	assert.Equal(t, 0.0, *cfg.Min)
	assert.Equal(t, 100.0, *cfg.Max)
	assert.Equal(t, "slider", cfg.Mode)
	assert.Equal(t, "ce02/garage/soc/set", cfg.CommandTopic)

	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"command_topic"`)
	assert.NotContains(t, string(b), `"payload_on"`)
}

func TestStatePayloadShape(t *testing.T) {
	soc := 42.0
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	elapsed := int64(3600)
	r := &controller.Reading{
		Timestamp:         start.Add(time.Hour),
		Soc:               64.9,
		IsCharging:        true,
		ChargePowerKW:     0.9,
		EnergyConsumedKWh: 0.9,
		SocAtChargeStart:  &soc,
		ChargeStartTime:   &start,
		ElapsedSeconds:    &elapsed,
	}

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, 64.9, m["soc"])
	assert.Equal(t, true, m["is_charging"])
	assert.Equal(t, float64(3600), m["elapsed_seconds"])
	assert.Equal(t, "2025-06-01T08:00:00Z", m["charge_start_time"])
	// Not-applicable fields stay out of the payload entirely.
	assert.NotContains(t, m, "time_at_80")
	assert.NotContains(t, m, "remaining_to_80_seconds")
}
