package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request and returns the status and body.
func (c *HTTPClient) Get(ctx context.Context, path string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// Post performs a POST request with a JSON body and returns the status and body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (int, []byte, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// fetchSchema reads GET /schema.
func fetchSchema(ctx context.Context, client *HTTPClient) (Schema, error) {
	status, body, err := client.Get(ctx, "/schema")
	if err != nil {
		return Schema{}, fmt.Errorf("failed to fetch schema: %w", err)
	}
	if status != StatusOK {
		return Schema{}, fmt.Errorf("%w: GET /schema returned %d", ErrUnexpected, status)
	}
	var s Schema
	if err := json.Unmarshal(body, &s); err != nil {
		return Schema{}, fmt.Errorf("failed to decode schema: %w", err)
	}
	if len(s.Features) == 0 {
		return Schema{}, ErrEmptySchema
	}
	return s, nil
}

// predict posts one record. ok is false when the server rejected it with 422.
func predict(ctx context.Context, client *HTTPClient, rec Record) (Prediction, bool, error) {
	status, body, err := client.Post(ctx, "/predict", rec)
	if err != nil {
		return Prediction{}, false, err
	}
	switch status {
	case StatusOK:
		var p Prediction
		if err := json.Unmarshal(body, &p); err != nil {
			return Prediction{}, false, fmt.Errorf("failed to decode prediction: %w", err)
		}
		return p, true, nil
	case StatusUnprocessableEntity:
		return Prediction{}, false, nil
	default:
		return Prediction{}, false, fmt.Errorf("%w: POST /predict returned %d: %s", ErrUnexpected, status, bytes.TrimSpace(body))
	}
}
