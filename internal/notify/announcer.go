package notify

import (
	"github.com/sirupsen/logrus"

	"github.com/jmleroy/ce02-hass/internal/controller"
)

// LogAnnouncer surfaces charge-session transitions to the operator via the
// application log. It implements controller.Announcer; the host sees the
// same transitions through the MQTT state topic, so this is deliberately the
// only local notification channel.
type LogAnnouncer struct {
	device string
	logger *logrus.Logger
}

// NewLogAnnouncer creates an announcer for the named device.
func NewLogAnnouncer(device string, logger *logrus.Logger) *LogAnnouncer {
	return &LogAnnouncer{device: device, logger: logger}
}

// Announce logs a single charge-session transition.
func (a *LogAnnouncer) Announce(event string, soc float64) {
	entry := a.logger.WithFields(logrus.Fields{
		"device": a.device,
		"soc":    soc,
	})

	switch event {
	case controller.EventStart:
		entry.Info("Charge session started")
	case controller.EventStop:
		entry.Info("Charge session stopped")
	case controller.EventComplete:
		entry.Info("Charge session complete, battery full")
	default:
		entry.WithField("event", event).Info("Charge session event")
	}
}
