package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/digitalself/location-agent/internal/store"
	"github.com/digitalself/location-agent/internal/uploaders"
	"github.com/digitalself/location-agent/internal/utils"
	"github.com/rs/zerolog"
)

// coordinatorState is the lifecycle state of the DeliveryCoordinator.
type coordinatorState int

const (
	// StateIdle is the initial state before tracking has ever started.
	StateIdle coordinatorState = iota
	// StateTracking accepts submitted samples.
	StateTracking
	// StateStopped rejects new samples until tracking restarts.
	StateStopped
)

func (s coordinatorState) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Stats is a snapshot of the coordinator's delivery counters, exposed as the
// pipeline's metrics hook.
type Stats struct {
	Submitted      int64 // records accepted by Submit
	Delivered      int64 // records delivered on the immediate path
	Enqueued       int64 // records spooled after a failed delivery
	Retried        int64 // spooled records delivered by RetryPending
	Lost           int64 // spooled records discarded after a failed retry
	AppendFailures int64 // spool writes that failed
}

// DeliveryCoordinator orchestrates the location upload pipeline: each
// submitted record gets one immediate delivery attempt on a background
// worker; failures land in the durable queue; RetryPending replays the queue
// in FIFO order and then drops the drained batch regardless of per-record
// outcome. Records whose retry failed are discarded; the Lost counter and the
// queue size are the health signals for it. Records spooled by concurrent
// submits during the pass are left in place for the next one.
type DeliveryCoordinator struct {
	// Dependencies
	uploader   uploaders.Uploader
	queue      store.DurableQueueInterface
	workerPool *utils.WorkerPool
	logger     zerolog.Logger

	// Configuration fields
	deliverTimeout time.Duration

	// Internal state management
	stateMu sync.Mutex
	state   coordinatorState
	retryMu sync.Mutex
	errCh   chan error

	submitted      atomic.Int64
	delivered      atomic.Int64
	enqueued       atomic.Int64
	retried        atomic.Int64
	lost           atomic.Int64
	appendFailures atomic.Int64
}

// NewDeliveryCoordinator creates a new DeliveryCoordinator instance with the
// provided dependencies. One coordinator owns the queue exclusively.
func NewDeliveryCoordinator(uploader uploaders.Uploader, queue store.DurableQueueInterface,
	workerPool *utils.WorkerPool, deliverTimeout time.Duration, logger zerolog.Logger) *DeliveryCoordinator {
	if deliverTimeout <= 0 {
		deliverTimeout = 10 * time.Second
	}
	return &DeliveryCoordinator{
		uploader:       uploader,
		queue:          queue,
		workerPool:     workerPool,
		deliverTimeout: deliverTimeout,
		logger:         logger,
		state:          StateIdle,
		errCh:          make(chan error, 16),
	}
}

// Start transitions the coordinator into Tracking.
func (c *DeliveryCoordinator) Start() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state == StateTracking {
		c.logger.Warn().Msg("DeliveryCoordinator is already tracking")
		return errors.New("delivery coordinator is already tracking")
	}

	c.state = StateTracking
	c.logger.Info().Int("pending", c.queue.Size()).Msg("DeliveryCoordinator started")
	return nil
}

// Stop halts acceptance of new samples. In-flight delivery attempts run to
// completion and the queue is left untouched.
func (c *DeliveryCoordinator) Stop() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state != StateTracking {
		c.logger.Warn().Msg("DeliveryCoordinator is not tracking")
		return errors.New("delivery coordinator is not tracking")
	}

	c.state = StateStopped
	c.logger.Info().Msg("DeliveryCoordinator stopped")
	return nil
}

// Submit accepts one sampled record and returns without waiting on the
// network or the disk. Outside Tracking it is a no-op. The only synchronous
// error is a failed validation; delivery and spool failures never reach the
// sampler.
func (c *DeliveryCoordinator) Submit(record models.EventRecord) error {
	if err := record.Validate(); err != nil {
		c.logger.Warn().Err(err).Msg("Rejected malformed location sample")
		return err
	}

	c.stateMu.Lock()
	state := c.state
	c.stateMu.Unlock()

	if state != StateTracking {
		c.logger.Warn().Str("state", state.String()).Msg("Ignoring sample submitted while not tracking")
		return nil
	}

	c.submitted.Add(1)

	if ok := c.workerPool.TrySubmit(func() { c.attemptDelivery(record) }); !ok {
		// All workers busy: the record still gets its immediate attempt on a
		// dedicated goroutine rather than blocking the sampler's callback.
		c.logger.Debug().Msg("Worker pool saturated, delivering on a dedicated goroutine")
		go c.attemptDelivery(record)
	}

	return nil
}

// attemptDelivery runs one immediate delivery attempt on a pool worker.
func (c *DeliveryCoordinator) attemptDelivery(record models.EventRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deliverTimeout)
	defer cancel()

	err := c.uploader.Deliver(ctx, record)
	if err == nil {
		c.delivered.Add(1)
		c.logger.Debug().Time("sample_ts", record.Timestamp).Msg("Location sample delivered")
		return
	}

	var deliveryErr *uploaders.DeliveryError
	if errors.As(err, &deliveryErr) {
		c.logger.Info().
			Str("reason", string(deliveryErr.Reason)).
			Time("sample_ts", record.Timestamp).
			Msg("Delivery failed, spooling sample")
	} else {
		c.logger.Error().Err(err).Msg("Unexpected delivery error, spooling sample")
	}

	if err := c.enqueue(record); err != nil {
		c.reportError(err)
	}
}

// enqueue spools one undelivered record.
func (c *DeliveryCoordinator) enqueue(record models.EventRecord) error {
	if err := c.queue.Append(record); err != nil {
		c.appendFailures.Add(1)
		c.logger.Error().Err(err).Msg("Failed to spool undelivered sample")
		return err
	}

	c.enqueued.Add(1)
	c.logger.Debug().Int("queue_size", c.queue.Size()).Msg("Sample spooled for retry")
	return nil
}

// RetryPending replays every spooled record sequentially, in FIFO order, then
// drops the drained batch whether or not every record went through. It is
// idempotent and callable in any state; concurrent invocations are serialized.
func (c *DeliveryCoordinator) RetryPending() error {
	c.retryMu.Lock()
	defer c.retryMu.Unlock()

	records, err := c.queue.DrainAll()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read spooled samples")
		return err
	}

	if len(records) == 0 {
		c.logger.Debug().Msg("No spooled samples to retry")
		return nil
	}

	var succeeded, failed int64
	for _, record := range records {
		ctx, cancel := context.WithTimeout(context.Background(), c.deliverTimeout)
		err := c.uploader.Deliver(ctx, record)
		cancel()

		if err != nil {
			failed++
			c.logger.Warn().Err(err).Time("sample_ts", record.Timestamp).Msg("Retry delivery failed")
			continue
		}
		succeeded++
	}

	// Only the drained batch leaves the queue, even when some deliveries
	// failed; those records are gone for good and only the counters remember
	// them. Records appended mid-pass by concurrent submits stay spooled.
	if err := c.queue.TruncateHead(len(records)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to drop retried batch from spool")
		c.reportError(err)
		return err
	}

	c.retried.Add(succeeded)
	c.lost.Add(failed)

	event := c.logger.Info()
	if failed > 0 {
		event = c.logger.Warn()
	}
	event.Int("attempted", len(records)).
		Int64("succeeded", succeeded).
		Int64("discarded", failed).
		Msg("Retry pass finished")

	return nil
}

// Errors exposes spool failures detected on the asynchronous delivery path.
// The channel is buffered and never blocks the pipeline; unread errors beyond
// the buffer are dropped after being logged.
func (c *DeliveryCoordinator) Errors() <-chan error {
	return c.errCh
}

// Stats returns a snapshot of the delivery counters.
func (c *DeliveryCoordinator) Stats() Stats {
	return Stats{
		Submitted:      c.submitted.Load(),
		Delivered:      c.delivered.Load(),
		Enqueued:       c.enqueued.Load(),
		Retried:        c.retried.Load(),
		Lost:           c.lost.Load(),
		AppendFailures: c.appendFailures.Load(),
	}
}

// QueueSize reports the number of records currently spooled.
func (c *DeliveryCoordinator) QueueSize() int {
	return c.queue.Size()
}

func (c *DeliveryCoordinator) reportError(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}
