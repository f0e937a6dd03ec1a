package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pipelineerrors "crmimport/internal/errors"
	"crmimport/internal/models"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// HTTPSubmitter posts chunks as JSON to an insert-or-update endpoint.
type HTTPSubmitter struct {
	Endpoint string
	Client   *http.Client
	// JobID, when set, is sent as X-Import-Job so the endpoint can tag
	// its logs.
	JobID string
}

// NewHTTPSubmitter returns a submitter with its own client; timeout bounds
// each chunk round trip.
func NewHTTPSubmitter(endpoint string, timeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSubmitter) Submit(ctx context.Context, req models.ChunkRequest) (*models.ChunkResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chunk: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.JobID != "" {
		httpReq.Header.Set("X-Import-Job", s.JobID)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &pipelineerrors.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &pipelineerrors.TransportError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("endpoint rejected chunk: %s", bytes.TrimSpace(snippet)),
		}
	}

	var out models.ChunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &pipelineerrors.TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &out, nil
}
