package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PendingRetrier replays spooled records.
type PendingRetrier interface {
	RetryPending() error
}

// RetryScheduler turns lifecycle moments into retry passes: an optional pass
// at startup, an optional periodic pass, and on-demand passes fired through
// TriggerRetry (wired to SIGHUP by the composition root, the daemon analog of
// the app coming to the foreground).
type RetryScheduler struct {
	// Configuration fields
	retryOnStart bool
	interval     time.Duration

	// Dependencies
	retrier PendingRetrier
	logger  zerolog.Logger

	// Internal state management
	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRetryScheduler creates a new RetryScheduler instance. An interval of
// zero disables the periodic pass.
func NewRetryScheduler(retryOnStart bool, interval time.Duration, retrier PendingRetrier, logger zerolog.Logger) *RetryScheduler {
	return &RetryScheduler{
		retryOnStart: retryOnStart,
		interval:     interval,
		retrier:      retrier,
		logger:       logger,
		trigger:      make(chan struct{}, 1),
	}
}

// Start launches the scheduling loop.
func (r *RetryScheduler) Start() error {
	if r.running {
		r.logger.Warn().Msg("RetryScheduler is already running")
		return errors.New("retry scheduler is already running")
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if r.retryOnStart {
			r.runRetryPass("startup")
		}

		var tick <-chan time.Time
		if r.interval > 0 {
			ticker := time.NewTicker(r.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				r.runRetryPass("interval")
			case <-r.trigger:
				r.runRetryPass("signal")
			case <-r.ctx.Done():
				r.logger.Info().Msg("RetryScheduler is stopping")
				return
			}
		}
	}()

	r.logger.Info().
		Bool("retry_on_start", r.retryOnStart).
		Dur("interval", r.interval).
		Msg("RetryScheduler started")
	return nil
}

// Stop terminates the scheduling loop. A retry pass already underway runs to
// completion.
func (r *RetryScheduler) Stop() error {
	if !r.running {
		r.logger.Warn().Msg("RetryScheduler is not running")
		return errors.New("retry scheduler is not running")
	}

	r.cancel()
	r.wg.Wait()
	r.running = false
	r.logger.Info().Msg("RetryScheduler stopped")
	return nil
}

// TriggerRetry requests an immediate retry pass without blocking. Requests
// arriving while one is already queued coalesce.
func (r *RetryScheduler) TriggerRetry() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *RetryScheduler) runRetryPass(cause string) {
	if err := r.retrier.RetryPending(); err != nil {
		r.logger.Error().Err(err).Str("cause", cause).Msg("Retry pass failed")
	}
}
