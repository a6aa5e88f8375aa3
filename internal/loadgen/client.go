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

// Caller identity headers expected by the engine API.
const (
	headerCallerID   = "X-Caller-Id"
	headerCallerRole = "X-Caller-Role"
)

// HTTPClient wraps http.Client with a fixed caller identity
type HTTPClient struct {
	client *http.Client
	id     string
	role   string
}

// newHTTPClient creates a new HTTP client acting as the given caller
func newHTTPClient(timeout time.Duration, id, role string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		id:   id,
		role: role,
	}
}

// Get performs a GET request with caller headers
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	return c.client.Do(req)
}

// Post performs a POST request with JSON body and caller headers
func (c *HTTPClient) Post(ctx context.Context, url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)
	return c.client.Do(req)
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.id != "" {
		req.Header.Set(headerCallerID, c.id)
		req.Header.Set(headerCallerRole, c.role)
	}
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// decodeResponse reads the body and unmarshals it into v
func decodeResponse(resp *http.Response, v interface{}) error {
	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
