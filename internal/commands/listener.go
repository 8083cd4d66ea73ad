package commands

import (
	"fmt"
	"strconv"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/jmleroy/ce02-hass/internal/bus"
	"github.com/jmleroy/ce02-hass/internal/controller"
	"github.com/jmleroy/ce02-hass/internal/mqtt"
	"github.com/jmleroy/ce02-hass/internal/transmission"
)

// Listener maps Home Assistant command topics onto controller operations:
// the charging switch starts/stops a session, the SoC number applies a
// manual override. After every accepted command a fresh snapshot is pushed
// onto the bus so the host UI reflects the change immediately instead of
// waiting for the next refresh tick.
type Listener struct {
	controller *controller.Controller
	client     *mqtt.Client
	bus        *bus.Bus
	logger     *logrus.Logger
}

// NewListener creates a command listener. Start must be called to subscribe.
func NewListener(ctrl *controller.Controller, client *mqtt.Client, b *bus.Bus, logger *logrus.Logger) *Listener {
	return &Listener{
		controller: ctrl,
		client:     client,
		bus:        b,
		logger:     logger,
	}
}

// Start subscribes to the switch and number command topics.
func (l *Listener) Start() error {
	switchTopic := l.client.GetCommandTopic(transmission.EntityChargingSwitch)
	if err := l.client.Subscribe(switchTopic, l.onSwitchCommand); err != nil {
		return fmt.Errorf("subscribe switch commands: %w", err)
	}

	socTopic := l.client.GetCommandTopic(transmission.EntitySocNumber)
	if err := l.client.Subscribe(socTopic, l.onSocCommand); err != nil {
		return fmt.Errorf("subscribe soc commands: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"switch_topic": switchTopic,
		"soc_topic":    socTopic,
	}).Info("Command listener ready")
	return nil
}

func (l *Listener) onSwitchCommand(_ paho.Client, msg paho.Message) {
	payload := string(msg.Payload())
	on, err := parseSwitchPayload(payload)
	if err != nil {
		l.logger.WithField("payload", payload).Warn("Dropping malformed switch command")
		return
	}

	if on {
		err = l.controller.StartCharging()
	} else {
		err = l.controller.StopCharging()
	}
	if err != nil {
		l.logger.WithError(err).Warn("Switch command failed")
	}
	l.publishSnapshot()
}

func (l *Listener) onSocCommand(_ paho.Client, msg paho.Message) {
	payload := string(msg.Payload())
	value, err := parseSocPayload(payload)
	if err != nil {
		l.logger.WithField("payload", payload).Warn("Dropping malformed SoC command")
		return
	}

	if err := l.controller.SetSoc(value); err != nil {
		l.logger.WithError(err).WithField("soc", value).Warn("SoC override rejected")
		return
	}
	l.publishSnapshot()
}

func (l *Listener) publishSnapshot() {
	r, err := l.controller.Snapshot()
	if err != nil {
		l.logger.WithError(err).Warn("Snapshot after command failed to persist")
	}
	l.bus.Publish(&r)
}

func parseSwitchPayload(s string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON":
		return true, nil
	case "OFF":
		return false, nil
	default:
		return false, fmt.Errorf("unknown switch payload %q", s)
	}
}

func parseSocPayload(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("soc payload %q: %w", s, err)
	}
	return v, nil
}
