package trips

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/dispatch-relay/internal/models"
)

// Client talks to the external trip assignment service. The service decides
// which driver gets a trip; the relay only delivers that decision.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client with a bounded per-call timeout. A request that
// outlives the timeout is treated as a creation failure; it is never
// retried here.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Create books a trip for rider. Timeout, non-2xx and an unusable body all
// come back as errors.
func (c *Client) Create(ctx context.Context, rider models.TripRider) (*models.TripRecord, error) {
	rec, err := c.do(ctx, http.MethodPost, map[string]any{"rider": rider})
	if err != nil {
		return nil, err
	}
	if rec.SK == "" {
		return nil, fmt.Errorf("trip service returned no trip id")
	}
	return rec, nil
}

// Cancel voids a trip. Same wire shape as Create.
func (c *Client) Cancel(ctx context.Context, tripID string) error {
	_, err := c.do(ctx, http.MethodDelete, map[string]any{"tripId": tripID})
	return err
}

// Complete marks a trip finished.
func (c *Client) Complete(ctx context.Context, tripID string) error {
	_, err := c.do(ctx, http.MethodPut, map[string]any{"tripId": tripID})
	return err
}

func (c *Client) do(ctx context.Context, method string, body any) (*models.TripRecord, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal trip request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/trips", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trip service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("trip service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out models.TripServiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode trip service response: %w", err)
	}
	return &out.Data, nil
}
