package uploaders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/digitalself/location-agent/internal/models"
	"github.com/rs/zerolog"
)

// HTTPUploader delivers records by POSTing one flat JSON object per record to
// a REST collector endpoint, authenticated with an API key and bearer token.
type HTTPUploader struct {
	endpoint string
	apiKey   string
	token    string
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPUploader creates a new HTTPUploader for the given collector endpoint.
// apiKey and token may be empty when the collector does not require them.
func NewHTTPUploader(endpoint, apiKey, token string, logger zerolog.Logger) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		apiKey:   apiKey,
		token:    token,
		client:   &http.Client{},
		logger:   logger,
	}
}

// Deliver posts one record. The caller's context bounds the whole attempt.
func (u *HTTPUploader) Deliver(ctx context.Context, record models.EventRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return &DeliveryError{Reason: ReasonBackendRejected, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(payload))
	if err != nil {
		return &DeliveryError{Reason: ReasonBackendRejected, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if u.apiKey != "" {
		req.Header.Set("apikey", u.apiKey)
	}
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return &DeliveryError{Reason: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		u.logger.Debug().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Collector rejected location sample")
		return &DeliveryError{
			Reason: ReasonBackendRejected,
			Err:    fmt.Errorf("collector returned status %d", resp.StatusCode),
		}
	}

	return nil
}

// classifyTransportError maps a transport-level error onto the failure
// taxonomy: deadline overruns become timeouts, everything else counts as the
// network being unreachable.
func classifyTransportError(err error) FailureReason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonNetworkUnreachable
}
