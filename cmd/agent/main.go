package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digitalself/location-agent/internal/services"
	"github.com/digitalself/location-agent/internal/store"
	"github.com/digitalself/location-agent/internal/uploaders"
	"github.com/digitalself/location-agent/internal/utils"
	"github.com/digitalself/location-agent/pkg/file"
	"github.com/digitalself/location-agent/pkg/identity"
	"github.com/digitalself/location-agent/pkg/location"
	"github.com/digitalself/location-agent/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := newLogger(config)

	// Initialize device identity; its ID is the source tag on every sample
	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load device information")
	}
	logger.Info().Str("device_id", deviceInfo.GetDeviceID()).Msg("Device identity loaded")

	// Open the durable spool before anything can produce samples
	queue, err := store.NewDurableQueue(config.Queue.SpoolFile, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open durable spool")
	}
	defer queue.Close()

	uploader, mqttClient, err := buildUploader(config, fileClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize uploader")
	}
	if mqttClient != nil {
		defer mqttClient.Disconnect(250)
	}

	workerPool := utils.NewWorkerPool(4, 64)
	defer workerPool.Shutdown()

	coordinator := services.NewDeliveryCoordinator(uploader, queue, workerPool, config.Uploader.Timeout.Std(), logger)
	if err := coordinator.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start delivery coordinator")
	}

	// Surface spool failures from the asynchronous delivery path
	go func() {
		for err := range coordinator.Errors() {
			logger.Error().Err(err).Msg("Durable spool failure")
		}
	}()

	scheduler := services.NewRetryScheduler(config.Retry.OnStart, config.Retry.Interval.Std(), coordinator, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start retry scheduler")
	}

	var tracking *services.TrackingService
	if config.Tracking.Enabled {
		provider, err := buildLocationProvider(config)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize location provider")
		}

		tracking = services.NewTrackingService(config.Tracking.Interval.Std(), deviceInfo, coordinator, provider, logger)
		if err := tracking.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start tracking service")
		}
	}

	var health *services.HealthService
	if config.Health.Enabled {
		health = services.NewHealthService(config.Health.Interval.Std(), config.Queue.SpoolFile, coordinator, logger)
		if err := health.Start(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start health service")
		}
	}

	logger.Info().Msg("Location agent started")

	// SIGHUP stands in for the app-foregrounding lifecycle event and forces a
	// retry pass; SIGINT/SIGTERM shut the agent down.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Info().Msg("Received SIGHUP, scheduling retry pass")
			scheduler.TriggerRetry()
			continue
		}
		break
	}

	logger.Info().Msg("Shutting down gracefully...")
	if tracking != nil {
		if err := tracking.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop tracking service")
		}
	}
	if health != nil {
		if err := health.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop health service")
		}
	}
	if err := scheduler.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop retry scheduler")
	}
	if err := coordinator.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop delivery coordinator")
	}
}

// newLogger builds the agent logger: console output plus an optional rotated
// log file.
func newLogger(config *utils.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil || config.Logging.Level == "" {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}
	if config.Logging.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.Logging.File,
			MaxSize:    config.Logging.MaxSizeMB,
			MaxBackups: config.Logging.MaxBackups,
			MaxAge:     config.Logging.MaxAgeDays,
		})
	}

	return zerolog.New(io.MultiWriter(writers...)).Level(level).With().Timestamp().Logger()
}

// buildUploader constructs the collector transport selected in the
// configuration. The returned MqttService is non-nil only for the MQTT kind
// so the caller can disconnect it on shutdown.
func buildUploader(config *utils.Config, fileClient file.FileOperations, logger zerolog.Logger) (uploaders.Uploader, *mqtt.MqttService, error) {
	switch config.Uploader.Kind {
	case "http":
		apiKey := readOptionalSecret(config.Uploader.APIKeyFile, fileClient, logger)
		token := readOptionalSecret(config.Uploader.TokenFile, fileClient, logger)
		return uploaders.NewHTTPUploader(config.Uploader.Endpoint, apiKey, token, logger), nil, nil
	default:
		clientID := config.MQTT.ClientID + "-" + uuid.New().String()
		logger.Info().Str("client_id", clientID).Msg("Using MQTT client ID")

		mqttClient := mqtt.NewMqttService(fileClient)
		if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
			return nil, nil, err
		}
		return uploaders.NewMQTTUploader(config.Uploader.Topic, config.Uploader.QOS, mqttClient, logger), mqttClient, nil
	}
}

// buildLocationProvider selects the sampling source.
func buildLocationProvider(config *utils.Config) (location.Provider, error) {
	if config.Tracking.SensorBased {
		return location.NewDeviceSensorProvider(config.Tracking.GPSDevicePort, config.Tracking.GPSDeviceBaudRate), nil
	}
	return location.NewGoogleGeolocationProvider(config.Tracking.MapsAPIKey, config.Tracking.ModemIndex)
}

// readOptionalSecret loads a credential file, tolerating its absence.
func readOptionalSecret(path string, fileClient file.FileOperations, logger zerolog.Logger) string {
	if path == "" {
		return ""
	}
	secret, err := fileClient.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to read credential file")
		return ""
	}
	return secret
}
