package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/digitalself/location-agent/pkg/identity"
	"github.com/digitalself/location-agent/pkg/location"
	"github.com/rs/zerolog"
)

// EventSink accepts sampled records for delivery.
type EventSink interface {
	Submit(record models.EventRecord) error
}

// TrackingService runs the location sampling loop: it periodically reads a
// fix from the configured provider, stamps it with the device identity and
// hands it to the delivery pipeline. Upload problems never slow this loop
// down; the sink absorbs them.
type TrackingService struct {
	// Configuration fields
	interval time.Duration

	// Dependencies
	deviceInfo       identity.DeviceInfoInterface
	sink             EventSink
	locationProvider location.Provider
	logger           zerolog.Logger

	// Internal state management
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewTrackingService creates a new TrackingService instance with the provided configuration.
func NewTrackingService(interval time.Duration, deviceInfo identity.DeviceInfoInterface,
	sink EventSink, locationProvider location.Provider, logger zerolog.Logger) *TrackingService {
	return &TrackingService{
		interval:         interval,
		deviceInfo:       deviceInfo,
		sink:             sink,
		locationProvider: locationProvider,
		logger:           logger,
		running:          false,
	}
}

// Start initiates the TrackingService, periodically submitting location samples.
func (t *TrackingService) Start() error {
	if t.running {
		t.logger.Warn().Msg("TrackingService is already running")
		return errors.New("tracking service is already running")
	}

	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.running = true

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := t.sampleCurrentLocation(); err != nil {
					t.logger.Error().Err(err).Msg("Failed to sample current location")
				}
			case <-t.ctx.Done():
				t.logger.Info().Msg("TrackingService is stopping")
				return
			}
		}
	}()

	t.logger.Info().Dur("interval", t.interval).Msg("TrackingService started")
	return nil
}

// Stop gracefully stops the TrackingService, ensuring the sampling goroutine
// is terminated and the provider is closed.
func (t *TrackingService) Stop() error {
	if !t.running {
		t.logger.Warn().Msg("TrackingService is not running")
		return errors.New("tracking service is not running")
	}

	t.cancel()
	t.wg.Wait()

	if err := t.locationProvider.Close(); err != nil {
		t.logger.Error().Err(err).Msg("Failed to close location provider")
		return err
	}

	t.running = false
	t.logger.Info().Msg("TrackingService stopped")
	return nil
}

// sampleCurrentLocation fetches one fix and submits it to the pipeline.
func (t *TrackingService) sampleCurrentLocation() error {
	fix, err := t.locationProvider.GetLocation()
	if err != nil {
		return err
	}

	record := models.EventRecord{
		Timestamp: time.Now().UTC(),
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Accuracy:  fix.Accuracy,
		Altitude:  fix.Altitude,
		Speed:     fix.Speed,
		Heading:   fix.Heading,
		Source:    t.deviceInfo.GetDeviceID(),
	}

	if err := t.sink.Submit(record); err != nil {
		t.logger.Error().Err(err).Msg("Pipeline rejected location sample")
		return err
	}

	return nil
}
