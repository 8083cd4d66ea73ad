package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jmleroy/ce02-hass/internal/bus"
	"github.com/jmleroy/ce02-hass/internal/config"
	"github.com/jmleroy/ce02-hass/internal/controller"
	"github.com/jmleroy/ce02-hass/internal/transmission"
)

// Run launches the refresh and transmission loops and blocks until ctx is
// cancelled. The refresh loop only re-invokes the controller's snapshot
// reconciliation; its cadence bounds how promptly a finished charge is
// observed but never affects the computed values.
func Run(
	parentCtx context.Context,
	cfg config.Config,
	ctrl *controller.Controller,
	messageBus *bus.Bus,
	mqttTx *transmission.MQTTTransmitter,
	logger *logrus.Logger,
) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)

	// Refresh loop ---------------------------------------------------------
	grp.Go(func() error {
		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()

		// Publish the restored state immediately so a restart does not wait
		// a full interval before the host sees anything.
		publishSnapshot(ctrl, messageBus, logger)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				publishSnapshot(ctrl, messageBus, logger)
			}
		}
	})

	// Transmission scheduler -----------------------------------------------
	sub := messageBus.Subscribe()

	grp.Go(func() error {
		var (
			latest   *controller.Reading
			lastSent *controller.Reading
			sentAt   time.Time
		)
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case snap, ok := <-sub:
				if !ok {
					return nil
				}
				latest = snap
			case <-ticker.C:
				if latest == nil {
					continue
				}
				if mqttTx == nil {
					logger.WithFields(logrus.Fields{
						"soc":      latest.Soc,
						"charging": latest.IsCharging,
					}).Debug("No transmitter configured, snapshot logged only")
					lastSent, latest = latest, nil
					continue
				}

				now := time.Now()
				forced := cfg.ForceUpdateInterval > 0 && now.Sub(sentAt) >= cfg.ForceUpdateInterval
				if now.Sub(sentAt) < cfg.MQTTInterval && !forced {
					continue
				}
				if !controller.Changed(lastSent, latest) && !forced {
					continue
				}

				if err := mqttTx.Transmit(latest); err != nil {
					logger.WithError(err).Warn("MQTT transmit failed")
					// Clear the sent snapshot so the next tick retries even
					// if nothing changed, while still honouring the interval.
					lastSent = nil
					sentAt = now
				} else {
					lastSent = latest
					sentAt = now
				}
			}
		}
	})

	if err := grp.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Warn("app: background group exited")
	}
}

func publishSnapshot(ctrl *controller.Controller, messageBus *bus.Bus, logger *logrus.Logger) {
	r, err := ctrl.Snapshot()
	if err != nil {
		// In-memory state stays authoritative; surface the persistence
		// failure and keep going.
		logger.WithError(err).Warn("Charge session persistence unavailable")
	}
	messageBus.Publish(&r)
}
