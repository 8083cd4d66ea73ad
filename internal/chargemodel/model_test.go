package chargemodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocAfterZeroElapsed(t *testing.T) {
	p := DefaultParams()
	for _, soc := range []float64{0, 12.5, 50, 80, 99.9, 100} {
		assert.Equal(t, soc, p.SocAfter(soc, 0))
	}
}

func TestSocAfterMonotoneAndBounded(t *testing.T) {
	p := DefaultParams()
	prev := p.SocAfter(30, 0)
	for h := 0.1; h <= 12; h += 0.1 {
		cur := p.SocAfter(30, h)
		assert.GreaterOrEqual(t, cur, prev, "SoC decreased at %.1f h", h)
		assert.LessOrEqual(t, cur, 100.0)
		prev = cur
	}
	assert.Equal(t, 100.0, p.SocAfter(30, 12))
}

func TestSocAfterInputClamping(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 0.0, p.SocAfter(-5, 0))
	assert.Equal(t, 100.0, p.SocAfter(120, 0))
	assert.Equal(t, 50.0, p.SocAfter(50, -1))
}

func TestDefaultMilestones(t *testing.T) {
	p := DefaultParams()

	// 0 -> 80%: (3.92*0.8)/0.9 h, 80 -> 100%: (3.92*0.2)/0.517 h.
	to80 := p.TimeToReach(0, 80).Hours()
	assert.InDelta(t, 3.484, to80, 0.001)

	from80To100 := p.TimeToReach(80, 100).Hours()
	assert.InDelta(t, 1.517, from80To100, 0.001)

	total := p.TimeToReach(0, 100).Hours()
	assert.InDelta(t, 5.0, total, 0.01)
	assert.InDelta(t, to80+from80To100, total, 1e-9)
}

func TestPhaseBoundary(t *testing.T) {
	p := DefaultParams()

	// Starting at 50%, phase 1 lasts (3.92*0.30)/0.9 h and ends exactly at
	// the threshold.
	tThr := p.TimeToThreshold(50)
	assert.InDelta(t, 1.307, tThr.Hours(), 0.001)
	assert.InDelta(t, 80.0, p.SocAfter(50, tThr.Hours()), 1e-6)

	assert.Equal(t, p.Phase1PowerKW, p.PowerAt(79.999))
	assert.Equal(t, p.Phase2PowerKW, p.PowerAt(80))
	assert.Equal(t, p.Phase2PowerKW, p.PowerAt(95))
}

func TestSocAfterStartAboveThreshold(t *testing.T) {
	p := DefaultParams()

	// From 90% the curve charges at phase-2 power immediately and never dips
	// back to the threshold.
	soc := p.SocAfter(90, 0.1)
	assert.Greater(t, soc, 90.0)
	expected := 90 + p.Phase2PowerKW*0.1/p.CapacityKWh*100
	assert.InDelta(t, expected, soc, 1e-9)
}

func TestTimeToReachRoundTrip(t *testing.T) {
	p := DefaultParams()
	cases := []struct {
		socStart float64
		hours    float64
	}{
		{0, 0.5},
		{0, 3.0},
		{0, 4.0}, // crosses the threshold
		{50, 1.0},
		{50, 2.0},
		{85, 0.5},
	}
	for _, tc := range cases {
		target := p.SocAfter(tc.socStart, tc.hours)
		require.Less(t, target, 100.0, "case %+v saturates, round trip undefined", tc)
		got := p.TimeToReach(tc.socStart, target)
		assert.InDelta(t, tc.hours, got.Hours(), 1e-9, "round trip from %.1f%% over %.1f h", tc.socStart, tc.hours)
	}
}

func TestTimeToReachAlreadyThere(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, time.Duration(0), p.TimeToReach(80, 80))
	assert.Equal(t, time.Duration(0), p.TimeToReach(90, 80))
	assert.Equal(t, time.Duration(0), p.TimeToReach(100, 100))
}

func TestEnergyDelta(t *testing.T) {
	p := DefaultParams()
	assert.InDelta(t, 3.92, p.EnergyDelta(0, 100), 1e-9)
	assert.InDelta(t, 0.392, p.EnergyDelta(70, 80), 1e-9)
	assert.Equal(t, 0.0, p.EnergyDelta(50, 50))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	cases := []Params{
		{CapacityKWh: 0, ThresholdPct: 80, Phase1PowerKW: 0.9, Phase2PowerKW: 0.517},
		{CapacityKWh: 3.92, ThresholdPct: 0, Phase1PowerKW: 0.9, Phase2PowerKW: 0.517},
		{CapacityKWh: 3.92, ThresholdPct: 100, Phase1PowerKW: 0.9, Phase2PowerKW: 0.517},
		{CapacityKWh: 3.92, ThresholdPct: 80, Phase1PowerKW: 0, Phase2PowerKW: 0.517},
		{CapacityKWh: 3.92, ThresholdPct: 80, Phase1PowerKW: 0.9, Phase2PowerKW: -1},
	}
	for i, p := range cases {
		assert.Error(t, p.Validate(), "case %d", i)
	}
}
