package controller

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmleroy/ce02-hass/internal/chargemodel"
	"github.com/jmleroy/ce02-hass/internal/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type recordingAnnouncer struct {
	events []string
}

func (r *recordingAnnouncer) Announce(event string, _ float64) {
	r.events = append(r.events, event)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestController(t *testing.T, store session.Store, clock Clock, ann Announcer) *Controller {
	t.Helper()
	c, err := New(chargemodel.DefaultParams(), store, clock, ann, testLogger())
	require.NoError(t, err)
	return c
}

func TestStartStopFoldsEnergy(t *testing.T) {
	clock := newFakeClock()
	store := session.NewMemStore()
	c := newTestController(t, store, clock, nil)

	require.NoError(t, c.StartCharging())
	clock.Advance(1 * time.Hour)
	require.NoError(t, c.StopCharging())

	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.False(t, r.IsCharging)
	// One hour at phase-1 power from an empty battery.
	assert.InDelta(t, 0.9/3.92*100, r.Soc, 1e-9)
	assert.InDelta(t, 0.9, r.EnergyConsumedKWh, 1e-9)
	assert.Equal(t, 0.0, r.ChargePowerKW)

	persisted, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.False(t, persisted.IsCharging)
	assert.InDelta(t, 0.9, persisted.EnergyConsumedKWh, 1e-9)
}

func TestStartIdempotentStopBenign(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(t, session.NewMemStore(), clock, nil)

	require.NoError(t, c.StopCharging()) // idle stop is a no-op

	require.NoError(t, c.StartCharging())
	r1, err := c.Snapshot()
	require.NoError(t, err)

	require.NoError(t, c.StartCharging()) // second start must not rebase
	r2, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, r1.ChargeStartTime, r2.ChargeStartTime)
	assert.Equal(t, r1.SocAtChargeStart, r2.SocAtChargeStart)
}

func TestStartWhileFull(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(t, session.NewMemStore(), clock, nil)

	require.NoError(t, c.SetSoc(100))
	require.NoError(t, c.StartCharging())

	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.False(t, r.IsCharging)
	assert.Equal(t, 100.0, r.Soc)
}

func TestSnapshotIdleFieldsAbsent(t *testing.T) {
	c := newTestController(t, session.NewMemStore(), newFakeClock(), nil)

	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.False(t, r.IsCharging)
	assert.Nil(t, r.ElapsedSeconds)
	assert.Nil(t, r.RemainingTo80Seconds)
	assert.Nil(t, r.RemainingTo100Seconds)
	assert.Nil(t, r.TimeAt80)
	assert.Nil(t, r.TimeAt100)
	assert.Nil(t, r.SocAtChargeStart)
	assert.Nil(t, r.ChargeStartTime)
}

func TestSnapshotChargingPhases(t *testing.T) {
	params := chargemodel.DefaultParams()
	clock := newFakeClock()
	c := newTestController(t, session.NewMemStore(), clock, nil)

	require.NoError(t, c.SetSoc(50))
	require.NoError(t, c.StartCharging())

	// Mid phase 1.
	clock.Advance(30 * time.Minute)
	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.True(t, r.IsCharging)
	assert.Equal(t, params.Phase1PowerKW, r.ChargePowerKW)
	require.NotNil(t, r.RemainingTo80Seconds)
	assert.Greater(t, *r.RemainingTo80Seconds, int64(0))
	require.NotNil(t, r.ElapsedSeconds)
	assert.Equal(t, int64(1800), *r.ElapsedSeconds)
	require.NotNil(t, r.TimeAt80)
	assert.Equal(t,
		r.Timestamp.Add(time.Duration(*r.RemainingTo80Seconds)*time.Second).Unix(),
		r.TimeAt80.Unix())

	// Just past the phase boundary the power switches and time-to-80 is no
	// longer applicable. One second of slack keeps duration truncation from
	// landing a hair below the threshold.
	tThr := params.TimeToThreshold(50)
	clock.Advance(tThr - 30*time.Minute + time.Second)
	r, err = c.Snapshot()
	require.NoError(t, err)
	assert.InDelta(t, 80.0, r.Soc, 0.01)
	assert.Equal(t, params.Phase2PowerKW, r.ChargePowerKW)
	assert.Nil(t, r.RemainingTo80Seconds)
	require.NotNil(t, r.RemainingTo100Seconds)
	assert.InDelta(t, params.TimeToReach(80, 100).Seconds(), float64(*r.RemainingTo100Seconds), 2)
}

func TestRestartInvariance(t *testing.T) {
	clock := newFakeClock()
	store := session.NewMemStore()

	c1 := newTestController(t, store, clock, nil)
	require.NoError(t, c1.StartCharging())
	clock.Advance(2 * time.Hour)
	r1, err := c1.Snapshot()
	require.NoError(t, err)

	// Same persisted session, fresh process: the first snapshot must be
	// reconstructed purely from the absolute timestamps.
	c2 := newTestController(t, store, clock, nil)
	r2, err := c2.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestAutoTerminate(t *testing.T) {
	clock := newFakeClock()
	store := session.NewMemStore()
	ann := &recordingAnnouncer{}
	c := newTestController(t, store, clock, ann)

	require.NoError(t, c.StartCharging())
	clock.Advance(10 * time.Hour) // well past full

	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.False(t, r.IsCharging)
	assert.Equal(t, 100.0, r.Soc)
	assert.InDelta(t, 3.92, r.EnergyConsumedKWh, 1e-9)
	assert.Contains(t, ann.events, EventComplete)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.False(t, persisted.IsCharging)
	assert.Equal(t, 100.0, persisted.LastKnownSoc)

	// The terminated session stays terminated.
	clock.Advance(time.Hour)
	again, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, r.Soc, again.Soc)
	assert.Equal(t, r.EnergyConsumedKWh, again.EnergyConsumedKWh)
}

func TestOverrideWhileCharging(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(t, session.NewMemStore(), clock, nil)

	require.NoError(t, c.StartCharging())
	clock.Advance(1 * time.Hour)

	// The override folds the energy spent so far and rebases the curve.
	require.NoError(t, c.SetSoc(50))
	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.True(t, r.IsCharging)
	assert.Equal(t, 50.0, r.Soc)
	assert.InDelta(t, 0.9, r.EnergyConsumedKWh, 1e-9)
	assert.Equal(t, c.Params().Phase1PowerKW, r.ChargePowerKW)

	// Energy keeps growing monotonically from the corrected position.
	clock.Advance(30 * time.Minute)
	r2, err := c.Snapshot()
	require.NoError(t, err)
	assert.Greater(t, r2.Soc, r.Soc)
	assert.Greater(t, r2.EnergyConsumedKWh, r.EnergyConsumedKWh)
}

func TestOverrideWhileIdle(t *testing.T) {
	c := newTestController(t, session.NewMemStore(), newFakeClock(), nil)

	require.NoError(t, c.SetSoc(73.5))
	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 73.5, r.Soc)
	assert.Equal(t, 0.0, r.EnergyConsumedKWh)
}

func TestOverrideInvalid(t *testing.T) {
	c := newTestController(t, session.NewMemStore(), newFakeClock(), nil)

	assert.True(t, errors.Is(c.SetSoc(-0.1), ErrInvalidSoc))
	assert.True(t, errors.Is(c.SetSoc(100.1), ErrInvalidSoc))
}

func TestEnergyAccumulatesAcrossSessions(t *testing.T) {
	clock := newFakeClock()
	c := newTestController(t, session.NewMemStore(), clock, nil)

	require.NoError(t, c.StartCharging())
	clock.Advance(1 * time.Hour)
	require.NoError(t, c.StopCharging())

	require.NoError(t, c.StartCharging())
	clock.Advance(30 * time.Minute)
	require.NoError(t, c.StopCharging())

	r, err := c.Snapshot()
	require.NoError(t, err)
	assert.InDelta(t, 0.9+0.45, r.EnergyConsumedKWh, 1e-9)
}

func TestAnnouncerSequence(t *testing.T) {
	clock := newFakeClock()
	ann := &recordingAnnouncer{}
	c := newTestController(t, session.NewMemStore(), clock, ann)

	require.NoError(t, c.StartCharging())
	clock.Advance(time.Hour)
	require.NoError(t, c.StopCharging())
	assert.Equal(t, []string{EventStart, EventStop}, ann.events)
}

func TestChangedIgnoresTimestamp(t *testing.T) {
	a := &Reading{Timestamp: time.Now(), Soc: 50}
	b := &Reading{Timestamp: a.Timestamp.Add(time.Minute), Soc: 50}
	assert.False(t, Changed(a, b))

	b.Soc = 51
	assert.True(t, Changed(a, b))
	assert.True(t, Changed(nil, a))
	assert.False(t, Changed(nil, nil))
}
