package uploaders

import (
	"context"
	"fmt"

	"github.com/digitalself/location-agent/internal/models"
)

// FailureReason classifies why a delivery attempt failed.
type FailureReason string

const (
	// ReasonNetworkUnreachable means the collector could not be reached at all.
	ReasonNetworkUnreachable FailureReason = "network-unreachable"
	// ReasonBackendRejected means the collector refused the payload (malformed
	// record, auth failure, server error).
	ReasonBackendRejected FailureReason = "backend-rejected"
	// ReasonTimeout means the attempt did not complete within its deadline.
	ReasonTimeout FailureReason = "timeout"
)

// DeliveryError is the recoverable failure of a single delivery attempt. The
// coordinator reacts to it by spooling the record; it is never surfaced to the
// sampler.
type DeliveryError struct {
	Reason FailureReason
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %v", e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Uploader performs one delivery attempt of a single record against the
// remote collector. A nil return means delivered; failures are reported as
// *DeliveryError. Implementations hold no mutable state and are safe for
// concurrent use; retry policy lives entirely in the coordinator.
type Uploader interface {
	Deliver(ctx context.Context, record models.EventRecord) error
}
