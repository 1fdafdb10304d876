package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/disk"
)

// HealthService is the pipeline's observability hook: it periodically reports
// the delivery counters, the spool backlog and the free space on the spool
// volume. A backlog that stays non-zero across consecutive reports means
// retries are not draining the queue, which is the documented health signal
// for sustained collector outages and lossy retry passes.
type HealthService struct {
	// Configuration fields
	interval  time.Duration
	spoolPath string

	// Dependencies
	coordinator *DeliveryCoordinator
	logger      zerolog.Logger

	// Internal state management
	lastBacklog int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
}

// NewHealthService creates a new HealthService instance.
func NewHealthService(interval time.Duration, spoolPath string, coordinator *DeliveryCoordinator, logger zerolog.Logger) *HealthService {
	return &HealthService{
		interval:    interval,
		spoolPath:   spoolPath,
		coordinator: coordinator,
		logger:      logger,
	}
}

// Start initiates periodic health reporting.
func (h *HealthService) Start() error {
	if h.running {
		h.logger.Warn().Msg("HealthService is already running")
		return errors.New("health service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.running = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h.report()
			case <-h.ctx.Done():
				h.logger.Info().Msg("HealthService is stopping")
				return
			}
		}
	}()

	h.logger.Info().Dur("interval", h.interval).Msg("HealthService started")
	return nil
}

// Stop terminates health reporting.
func (h *HealthService) Stop() error {
	if !h.running {
		h.logger.Warn().Msg("HealthService is not running")
		return errors.New("health service is not running")
	}

	h.cancel()
	h.wg.Wait()
	h.running = false
	h.logger.Info().Msg("HealthService stopped")
	return nil
}

// report logs one health snapshot.
func (h *HealthService) report() {
	stats := h.coordinator.Stats()
	backlog := h.coordinator.QueueSize()

	stalled := backlog > 0 && h.lastBacklog > 0

	event := h.logger.Info()
	if stalled {
		event = h.logger.Warn()
	}

	event = event.
		Int("backlog", backlog).
		Int64("submitted", stats.Submitted).
		Int64("delivered", stats.Delivered).
		Int64("enqueued", stats.Enqueued).
		Int64("retried", stats.Retried).
		Int64("lost", stats.Lost).
		Int64("append_failures", stats.AppendFailures)

	if usage, err := disk.Usage(filepath.Dir(h.spoolPath)); err == nil {
		event = event.
			Float64("disk_used_percent", usage.UsedPercent).
			Uint64("disk_free_bytes", usage.Free)
	} else {
		h.logger.Debug().Err(err).Msg("Failed to read spool volume usage")
	}

	if stalled {
		event.Msg("Spool backlog is not draining")
	} else {
		event.Msg("Pipeline health")
	}
	h.lastBacklog = backlog
}
