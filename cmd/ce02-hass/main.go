package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmleroy/ce02-hass/internal/app"
	"github.com/jmleroy/ce02-hass/internal/bus"
	"github.com/jmleroy/ce02-hass/internal/commands"
	"github.com/jmleroy/ce02-hass/internal/config"
	"github.com/jmleroy/ce02-hass/internal/controller"
	"github.com/jmleroy/ce02-hass/internal/mqtt"
	"github.com/jmleroy/ce02-hass/internal/notify"
	"github.com/jmleroy/ce02-hass/internal/session"
	"github.com/jmleroy/ce02-hass/internal/transmission"
	"github.com/sirupsen/logrus"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	cfg := parseFlags()

	logger := setupLogger(cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logFields := logrus.Fields{
		"version":   version,
		"device_id": cfg.DeviceID,
		"refresh":   cfg.RefreshInterval,
		"mqtt_int":  cfg.MQTTInterval,
	}
	if cfg.ForceUpdateInterval > 0 {
		logFields["force_update_int"] = cfg.ForceUpdateInterval
	}
	logger.WithFields(logFields).Info("Starting CE02-HASS")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Charge controller ----------------------------------------------------------
	store := session.NewFileStore(cfg.StateFile)
	announcer := notify.NewLogAnnouncer(cfg.DeviceName, logger)

	ctrl, err := controller.New(cfg.Battery, store, controller.SystemClock(), announcer, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize charge controller")
	}

	// Transmitter ----------------------------------------------------------------
	var mqttClient *mqtt.Client
	var mqttTx *transmission.MQTTTransmitter
	if cfg.HasMQTT() {
		mqttClient, err = mqtt.NewClient(cfg.MQTTUrl, cfg.DeviceID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer func() {
			if err := mqttClient.PublishAvailability(false); err != nil {
				logger.WithError(err).Debug("Failed to publish offline availability")
			}
			mqttClient.Disconnect(250)
		}()
		mqttTx = transmission.NewMQTTTransmitter(mqttClient, cfg.DeviceID, cfg.DeviceName, cfg.DiscoveryPrefix, logger)
		logger.Info("MQTT transmitter ready")
	} else {
		logger.Warn("No MQTT URL configured; data will only be logged")
	}

	messageBus := bus.New()

	// Home Assistant drives the simulation through the command topics.
	if mqttClient != nil {
		listener := commands.NewListener(ctrl, mqttClient, messageBus, logger)
		if err := listener.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to subscribe to command topics")
		}
	}

	// Run application ------------------------------------------------------------
	app.Run(ctx, cfg, ctrl, messageBus, mqttTx, logger)

	logger.Info("CE02-HASS stopped")
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() config.Config {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", getEnv("CE02_HASS_CONFIG", ""), "Path to yaml/json config file")

	mqttURL := flag.String("mqtt-url", "", "MQTT URL")
	deviceID := flag.String("device-id", "", "Device identifier")
	deviceName := flag.String("device-name", "", "Device display name in Home Assistant")
	stateFile := flag.String("state-file", "", "Charge session state file")
	discoveryPrefix := flag.String("discovery-prefix", "", "HA discovery prefix")
	verbose := flag.Bool("verbose", false, "Verbose logging")

	refreshIntervalStr := flag.String("refresh-interval", "", "Charge state refresh interval (e.g. 60s)")
	mqttIntervalStr := flag.String("mqtt-interval", "", "MQTT interval (e.g. 60s)")
	forceUpdateIntervalStr := flag.String("force-update-interval", "", "Publish all sensors at this interval even if unchanged (e.g. 10m, 0 = disabled)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("ce02-hass %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ce02-hass: %v\n", err)
		os.Exit(1)
	}

	// Flags win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mqtt-url":
			cfg.MQTTUrl = *mqttURL
		case "device-id":
			cfg.DeviceID = *deviceID
		case "device-name":
			cfg.DeviceName = *deviceName
		case "state-file":
			cfg.StateFile = *stateFile
		case "discovery-prefix":
			cfg.DiscoveryPrefix = *discoveryPrefix
		case "verbose":
			cfg.Verbose = *verbose
		case "refresh-interval":
			if d, ok := parseInterval(*refreshIntervalStr); ok && d > 0 {
				cfg.RefreshInterval = d
			}
		case "mqtt-interval":
			if d, ok := parseInterval(*mqttIntervalStr); ok && d > 0 {
				cfg.MQTTInterval = d
			}
		case "force-update-interval":
			if d, ok := parseInterval(*forceUpdateIntervalStr); ok && d >= 0 {
				cfg.ForceUpdateInterval = d
			}
		}
	})

	return cfg
}

// parseInterval accepts either a Go duration string or a bare seconds count.
func parseInterval(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if v, err := strconv.Atoi(s); err == nil {
		return time.Duration(v) * time.Second, true
	}
	return 0, false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
