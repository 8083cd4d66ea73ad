package controller

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jmleroy/ce02-hass/internal/chargemodel"
	"github.com/jmleroy/ce02-hass/internal/session"
)

// ErrInvalidSoc is returned when a manual SoC override lies outside [0,100].
var ErrInvalidSoc = errors.New("soc outside [0,100]")

// State machine states and the events that move between them.
const (
	StateIdle     = "idle"
	StateCharging = "charging"

	EventStart    = "start"    // Idle -> Charging (switch turned on)
	EventStop     = "stop"     // Charging -> Idle (switch turned off)
	EventComplete = "complete" // Charging -> Idle (SoC reached 100%)
)

// Announcer receives charge-session transitions for host-facing
// notification. Implementations must not block.
type Announcer interface {
	Announce(event string, soc float64)
}

// Controller owns the charge session of one simulated device. Every query
// recomputes the current SoC from the session's absolute start timestamp and
// the charging curve, so the controller carries no accumulated state that a
// restart could lose. All operations are serialized by an internal mutex.
type Controller struct {
	mu        sync.Mutex
	params    chargemodel.Params
	store     session.Store
	clock     Clock
	announcer Announcer
	logger    *logrus.Logger

	machine *fsm.FSM
	sess    *session.Session
}

// New loads the persisted session (or starts a fresh one) and returns a
// ready controller.
func New(params chargemodel.Params, store session.Store, clock Clock, announcer Announcer, logger *logrus.Logger) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "charge parameters")
	}

	sess, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load charge session")
	}
	if sess == nil {
		sess = session.New()
		logger.Info("No persisted charge session, starting fresh")
	} else if sess.IsCharging {
		logger.WithFields(logrus.Fields{
			"soc_at_charge_start": *sess.SocAtChargeStart,
			"charge_start_time":   sess.ChargeStartTime.Format(time.RFC3339),
		}).Info("Charging session restored")
	} else {
		logger.WithField("soc", sess.LastKnownSoc).Info("Idle charge state restored")
	}

	initial := StateIdle
	if sess.IsCharging {
		initial = StateCharging
	}

	c := &Controller{
		params:    params,
		store:     store,
		clock:     clock,
		announcer: announcer,
		logger:    logger,
		sess:      sess,
	}
	c.machine = fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: EventStart, Src: []string{StateIdle}, Dst: StateCharging},
			{Name: EventStop, Src: []string{StateCharging}, Dst: StateIdle},
			{Name: EventComplete, Src: []string{StateCharging}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				logger.WithFields(logrus.Fields{
					"event": e.Event,
					"from":  e.Src,
					"to":    e.Dst,
				}).Debug("Charge state transition")
			},
		},
	)
	return c, nil
}

// Params returns the charging curve the controller simulates with.
func (c *Controller) Params() chargemodel.Params { return c.params }

// StartCharging begins a charging session at the current clock instant.
// Starting while already charging, or with a full battery, is a benign no-op.
func (c *Controller) StartCharging() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	if c.sess.IsCharging {
		c.logger.Debug("Start requested while already charging, ignoring")
		return nil
	}
	if c.sess.LastKnownSoc >= 100 {
		c.logger.Info("Battery already full, nothing to charge")
		return nil
	}
	if err := c.fire(EventStart); err != nil {
		return nil
	}

	soc := c.sess.LastKnownSoc
	start := now.UTC()
	c.sess.IsCharging = true
	c.sess.SocAtChargeStart = &soc
	c.sess.ChargeStartTime = &start

	c.logger.WithField("soc", soc).Info("Charging started")
	c.announce(EventStart, soc)
	return c.persist()
}

// StopCharging ends the session, folding the elapsed energy into the
// running total. Stopping while idle is a benign no-op.
func (c *Controller) StopCharging() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	if !c.sess.IsCharging {
		c.logger.Debug("Stop requested while idle, ignoring")
		return nil
	}
	if err := c.fire(EventStop); err != nil {
		return nil
	}

	soc := c.fold(now)
	c.clearSession()

	c.logger.WithField("soc", soc).Info("Charging stopped")
	c.announce(EventStop, soc)
	return c.persist()
}

// SetSoc applies a manual SoC correction. While charging, the energy spent
// so far is folded in first and the session rebased so the curve continues
// from the corrected value; an override corrects position, never already
// consumed energy.
func (c *Controller) SetSoc(value float64) error {
	if value < 0 || value > 100 {
		return errors.Wrapf(ErrInvalidSoc, "%g", value)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	if c.sess.IsCharging {
		c.fold(now)
		soc := value
		start := now.UTC()
		c.sess.SocAtChargeStart = &soc
		c.sess.ChargeStartTime = &start
	}
	c.sess.LastKnownSoc = value

	c.logger.WithFields(logrus.Fields{
		"soc":      value,
		"charging": c.sess.IsCharging,
	}).Info("SoC manually set")
	return c.persist()
}

// Snapshot reconciles the current charge state at the current clock instant.
// It has no side effects except when the curve has reached 100%: then the
// session auto-terminates exactly as if StopCharging had been called, and the
// transition is persisted. The returned Reading is valid even when the
// persistence error is non-nil.
func (c *Controller) Snapshot() (Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()

	if !c.sess.IsCharging {
		return c.idleReading(now), nil
	}

	elapsed := now.Sub(*c.sess.ChargeStartTime)
	soc := c.params.SocAfter(*c.sess.SocAtChargeStart, elapsed.Hours())

	if soc >= 100 {
		// Charge complete: terminate the session instead of reporting
		// charging forever at 100%.
		soc = c.fold(now)
		c.clearSession()
		if err := c.fire(EventComplete); err == nil {
			c.logger.WithField("energy_kwh", c.sess.EnergyConsumedKWh).Info("Charge complete")
			c.announce(EventComplete, soc)
		}
		return c.idleReading(now), c.persist()
	}

	return c.chargingReading(now, soc, elapsed), nil
}

// fold recomputes the SoC reached at now, accumulates the corresponding
// energy and updates last_known_soc. Caller holds the mutex and the session
// must be charging.
func (c *Controller) fold(now time.Time) float64 {
	elapsed := now.Sub(*c.sess.ChargeStartTime)
	soc := c.params.SocAfter(*c.sess.SocAtChargeStart, elapsed.Hours())
	c.sess.EnergyConsumedKWh += c.params.EnergyDelta(*c.sess.SocAtChargeStart, soc)
	c.sess.LastKnownSoc = soc
	return soc
}

func (c *Controller) clearSession() {
	c.sess.IsCharging = false
	c.sess.SocAtChargeStart = nil
	c.sess.ChargeStartTime = nil
}

// fire triggers a state machine event. Invalid transitions are benign: they
// are logged and reported to the caller so the operation turns into a no-op.
func (c *Controller) fire(event string) error {
	if err := c.machine.Event(context.Background(), event); err != nil {
		c.logger.WithError(err).WithField("event", event).Debug("Ignoring invalid charge transition")
		return err
	}
	return nil
}

func (c *Controller) announce(event string, soc float64) {
	if c.announcer != nil {
		c.announcer.Announce(event, soc)
	}
}

func (c *Controller) persist() error {
	if err := c.store.Save(c.sess.Clone()); err != nil {
		// In-memory state stays authoritative until the next successful
		// write; the caller decides how to surface this.
		c.logger.WithError(err).Warn("Failed to persist charge session")
		return errors.Wrap(err, "persist charge session")
	}
	return nil
}

func (c *Controller) idleReading(now time.Time) Reading {
	return Reading{
		Timestamp:         now.UTC(),
		Soc:               c.sess.LastKnownSoc,
		IsCharging:        false,
		ChargePowerKW:     0,
		EnergyConsumedKWh: c.sess.EnergyConsumedKWh,
	}
}

func (c *Controller) chargingReading(now time.Time, soc float64, elapsed time.Duration) Reading {
	r := Reading{
		Timestamp:         now.UTC(),
		Soc:               soc,
		IsCharging:        true,
		ChargePowerKW:     c.params.PowerAt(soc),
		EnergyConsumedKWh: c.sess.EnergyConsumedKWh + c.params.EnergyDelta(*c.sess.SocAtChargeStart, soc),
		SocAtChargeStart:  c.sess.SocAtChargeStart,
		ChargeStartTime:   c.sess.ChargeStartTime,
	}

	elapsedSec := int64(elapsed.Round(time.Second).Seconds())
	r.ElapsedSeconds = &elapsedSec

	// Remaining times are evaluated at the current SoC, not the session
	// start, so they narrow correctly as phase boundaries are crossed.
	if soc < c.params.ThresholdPct {
		rem := c.params.TimeToReach(soc, c.params.ThresholdPct)
		sec := int64(rem.Round(time.Second).Seconds())
		at := now.UTC().Add(rem)
		r.RemainingTo80Seconds = &sec
		r.TimeAt80 = &at
	}
	rem := c.params.TimeToReach(soc, 100)
	sec := int64(rem.Round(time.Second).Seconds())
	at := now.UTC().Add(rem)
	r.RemainingTo100Seconds = &sec
	r.TimeAt100 = &at

	return r
}
