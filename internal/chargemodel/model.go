package chargemodel

import (
	"fmt"
	"math"
	"time"
)

// Params describes the fixed two-phase charging curve of the simulated
// battery: constant phase-1 power below the threshold SoC and constant
// phase-2 power at or above it. All functions on Params are pure; the
// whole simulation derives from these four numbers and elapsed time.
type Params struct {
	CapacityKWh   float64 `json:"capacity_kwh"`
	ThresholdPct  float64 `json:"threshold_pct"`
	Phase1PowerKW float64 `json:"phase1_power_kw"`
	Phase2PowerKW float64 `json:"phase2_power_kw"`
}

// DefaultParams returns the measured BMW CE-02 charging figures.
func DefaultParams() Params {
	return Params{
		CapacityKWh:   3.92,
		ThresholdPct:  80,
		Phase1PowerKW: 0.9,
		Phase2PowerKW: 0.517,
	}
}

// Validate checks that the parameters describe a usable charging curve.
func (p Params) Validate() error {
	if p.CapacityKWh <= 0 {
		return fmt.Errorf("battery capacity must be positive, got %g kWh", p.CapacityKWh)
	}
	if p.ThresholdPct <= 0 || p.ThresholdPct >= 100 {
		return fmt.Errorf("phase threshold must be inside (0,100), got %g%%", p.ThresholdPct)
	}
	if p.Phase1PowerKW <= 0 {
		return fmt.Errorf("phase 1 power must be positive, got %g kW", p.Phase1PowerKW)
	}
	if p.Phase2PowerKW <= 0 {
		return fmt.Errorf("phase 2 power must be positive, got %g kW", p.Phase2PowerKW)
	}
	return nil
}

// SocAfter returns the SoC reached after charging for elapsedHours starting
// from socStart. The result is a monotone, continuous, piecewise-linear
// function of elapsedHours, clamped to [0,100]. Repeated evaluation with the
// same inputs yields the same value, which is what makes recomputation from
// an absolute start timestamp restart-safe.
func (p Params) SocAfter(socStart, elapsedHours float64) float64 {
	socStart = ClampSoc(socStart)
	if elapsedHours <= 0 {
		return socStart
	}

	tThreshold := p.TimeToThreshold(socStart).Hours()
	if elapsedHours <= tThreshold {
		return ClampSoc(socStart + p.Phase1PowerKW*elapsedHours/p.CapacityKWh*100)
	}

	// Phase 1 fully consumed; the remainder charges at phase-2 power from
	// whichever is higher, the threshold or the starting SoC.
	base := math.Max(socStart, p.ThresholdPct)
	rest := elapsedHours - tThreshold
	return ClampSoc(base + p.Phase2PowerKW*rest/p.CapacityKWh*100)
}

// TimeToReach returns how long charging from socStart takes to reach
// targetPct. A target at or below the current SoC is already there and
// yields zero.
func (p Params) TimeToReach(socStart, targetPct float64) time.Duration {
	socStart = ClampSoc(socStart)
	targetPct = ClampSoc(targetPct)
	if targetPct <= socStart {
		return 0
	}

	var hours float64
	cur := socStart
	if cur < p.ThresholdPct {
		upper := math.Min(targetPct, p.ThresholdPct)
		hours += p.CapacityKWh * (upper - cur) / 100 / p.Phase1PowerKW
		cur = upper
	}
	if targetPct > cur {
		hours += p.CapacityKWh * (targetPct - cur) / 100 / p.Phase2PowerKW
	}
	return time.Duration(hours * float64(time.Hour))
}

// TimeToThreshold returns how long phase 1 lasts when charging from
// socStart; zero when the threshold is already reached.
func (p Params) TimeToThreshold(socStart float64) time.Duration {
	return p.TimeToReach(socStart, p.ThresholdPct)
}

// EnergyDelta converts a SoC difference into kWh.
func (p Params) EnergyDelta(socStart, socEnd float64) float64 {
	return p.CapacityKWh * (socEnd - socStart) / 100
}

// PowerAt returns the charging power drawn at the given SoC.
func (p Params) PowerAt(soc float64) float64 {
	if soc < p.ThresholdPct {
		return p.Phase1PowerKW
	}
	return p.Phase2PowerKW
}

// ClampSoc limits a state-of-charge percentage to [0,100].
func ClampSoc(soc float64) float64 {
	if soc < 0 {
		return 0
	}
	if soc > 100 {
		return 100
	}
	return soc
}
