package models

import (
	"fmt"
	"time"
)

// EventRecord represents one observed location sample. A record is treated as
// immutable once constructed; optional fields are nil when the source reported
// an invalid or sentinel value.
type EventRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Source    string    `json:"source"`
}

// ValidationError reports a malformed EventRecord rejected at submit time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event record: %s %s", e.Field, e.Reason)
}

// Validate checks the record against the coordinate and timestamp invariants.
func (e EventRecord) Validate() error {
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "is zero"}
	}
	if e.Latitude < -90 || e.Latitude > 90 {
		return &ValidationError{Field: "latitude", Reason: "out of range [-90,90]"}
	}
	if e.Longitude < -180 || e.Longitude > 180 {
		return &ValidationError{Field: "longitude", Reason: "out of range [-180,180]"}
	}
	return nil
}

// Key returns the (timestamp, latitude, longitude) identity used for
// deduplication. Uniqueness is not enforced anywhere; duplicates may flow
// through the pipeline.
func (e EventRecord) Key() string {
	return fmt.Sprintf("%d/%.8f/%.8f", e.Timestamp.UnixNano(), e.Latitude, e.Longitude)
}
