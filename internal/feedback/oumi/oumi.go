// Package oumi forwards analyst feedback to an Oumi fine-tuning collector.
package oumi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/aegis/internal/feedback"
)

const httpTimeout = 10 * time.Second

// Sink posts feedback payloads to the collector endpoint.
type Sink struct {
	endpoint string
	client   *http.Client
}

// New creates an Oumi sink. If endpoint is empty, Submit is a no-op: feedback
// is accepted and dropped rather than failing analyst submissions.
func New(endpoint string) *Sink {
	return &Sink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: httpTimeout},
	}
}

// Submit posts the payload to the configured collector.
func (s *Sink) Submit(ctx context.Context, p *feedback.Payload) error {
	if s.endpoint == "" {
		return nil
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("oumi: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("oumi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("oumi: post feedback: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("oumi: collector returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
