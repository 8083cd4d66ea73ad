package controller

import (
	"reflect"
	"time"
)

// Reading is a point-in-time view of the simulated charge state, built
// entirely from the persisted session and a wall-clock instant. Pointer
// fields are nil when not applicable (e.g. remaining times while idle, or
// time-to-80 once the threshold is passed).
type Reading struct {
	Timestamp         time.Time `json:"timestamp"`
	Soc               float64   `json:"soc"`
	IsCharging        bool      `json:"is_charging"`
	ChargePowerKW     float64   `json:"charge_power_kw"`
	EnergyConsumedKWh float64   `json:"energy_consumed_kwh"`

	SocAtChargeStart *float64   `json:"soc_at_charge_start,omitempty"`
	ChargeStartTime  *time.Time `json:"charge_start_time,omitempty"`

	ElapsedSeconds        *int64     `json:"elapsed_seconds,omitempty"`
	RemainingTo80Seconds  *int64     `json:"remaining_to_80_seconds,omitempty"`
	RemainingTo100Seconds *int64     `json:"remaining_to_100_seconds,omitempty"`
	TimeAt80              *time.Time `json:"time_at_80,omitempty"`
	TimeAt100             *time.Time `json:"time_at_100,omitempty"`
}

// Changed reports whether cur differs from prev beyond the generation
// timestamp. Transmitters use it to skip republishing identical state.
func Changed(prev, cur *Reading) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}

	p, c := *prev, *cur // copy
	p.Timestamp = time.Time{}
	c.Timestamp = time.Time{}
	return !reflect.DeepEqual(p, c)
}
