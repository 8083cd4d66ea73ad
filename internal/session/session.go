package session

import (
	"fmt"
	"time"
)

// Session is the persisted state of the simulated battery. Exactly one
// Session exists per device; it is created with defaults on first use,
// mutated by charge transitions and manual SoC overrides, and reloaded
// verbatim after a process restart.
//
// The pointer fields are present iff IsCharging is true: together with the
// absolute start timestamp they are all that is needed to recompute the
// current SoC at any later wall-clock instant.
type Session struct {
	IsCharging        bool       `json:"is_charging"`
	SocAtChargeStart  *float64   `json:"soc_at_charge_start,omitempty"`
	ChargeStartTime   *time.Time `json:"charge_start_time,omitempty"`
	EnergyConsumedKWh float64    `json:"energy_consumed_kwh"`
	LastKnownSoc      float64    `json:"last_known_soc"`
}

// New returns a fresh idle session with an empty battery.
func New() *Session {
	return &Session{}
}

// Validate enforces the session invariants: the charging flag and the two
// session-start fields are present together, SoC values stay inside [0,100]
// and consumed energy is never negative.
func (s *Session) Validate() error {
	if s.IsCharging != (s.SocAtChargeStart != nil && s.ChargeStartTime != nil) {
		return fmt.Errorf("charging flag %v inconsistent with session start fields", s.IsCharging)
	}
	if !s.IsCharging && (s.SocAtChargeStart != nil || s.ChargeStartTime != nil) {
		return fmt.Errorf("idle session carries stale session start fields")
	}
	if s.LastKnownSoc < 0 || s.LastKnownSoc > 100 {
		return fmt.Errorf("last known SoC %g%% outside [0,100]", s.LastKnownSoc)
	}
	if s.SocAtChargeStart != nil && (*s.SocAtChargeStart < 0 || *s.SocAtChargeStart > 100) {
		return fmt.Errorf("SoC at charge start %g%% outside [0,100]", *s.SocAtChargeStart)
	}
	if s.EnergyConsumedKWh < 0 {
		return fmt.Errorf("consumed energy %g kWh is negative", s.EnergyConsumedKWh)
	}
	return nil
}

// Clone returns an independent copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.SocAtChargeStart != nil {
		v := *s.SocAtChargeStart
		c.SocAtChargeStart = &v
	}
	if s.ChargeStartTime != nil {
		v := *s.ChargeStartTime
		c.ChargeStartTime = &v
	}
	return &c
}
