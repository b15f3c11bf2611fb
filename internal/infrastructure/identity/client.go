// Package identity contains the adapters that check credentials against the
// internal store, the SIS campus instances and the HR system.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/unza/counseling-identity/internal/api/metrics"
	"github.com/unza/counseling-identity/internal/core/domain"
)

const maxResponseBytes = 1 << 20

// genericDenial is the only message a client ever sees for a failed login.
const genericDenial = "invalid credentials or not found"

// NewHTTPClient returns the client shared by external adapters. Per-call
// deadlines come from the request context; timeout is only a backstop.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// doJSON sends body as JSON (when non-nil) and returns the status and the
// response body. Network failures wrap domain.ErrExternalTransport.
func doJSON(ctx context.Context, client *http.Client, method, url string, body any) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: build request: %v", domain.ErrExternalTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrExternalTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read body: %v", domain.ErrExternalTransport, err)
	}
	return resp.StatusCode, payload, nil
}

// isCredentialRejection reports whether status means "the source answered and
// said no" rather than "the source is broken".
func isCredentialRejection(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func observeCall(system, result string, start time.Time) {
	metrics.ExternalCallsTotal.WithLabelValues(system, result).Inc()
	metrics.ExternalCallDuration.WithLabelValues(system).Observe(time.Since(start).Seconds())
}
