// Package httpx is the shared outbound HTTP client: JSON round trips with
// bounded retries on transient failures.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketdata-service/internal/retry"
)

// StatusError is a non-2xx response. It carries the status code so the
// retry classifier can distinguish throttling and server faults from
// client mistakes.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

type Client struct {
	HTTP    *http.Client
	Headers map[string]string
	Retry   retry.Options
}

func New(timeout time.Duration) *Client {
	return &Client{
		HTTP: &http.Client{Timeout: timeout},
		Retry: retry.Options{
			MaxRetries: 2,
			BaseDelay:  200 * time.Millisecond,
			MaxDelay:   time.Second,
		},
	}
}

// GetJSON fetches url and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

// PutJSON sends body as JSON and, when out is non-nil, decodes the
// response into it.
func (c *Client) PutJSON(ctx context.Context, url string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPut, url, encoded, out)
}

// PostJSON sends body as JSON and, when out is non-nil, decodes the
// response into it.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, url, encoded, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out any) error {
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	op := func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.Headers {
			req.Header.Set(k, v)
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return &StatusError{Code: resp.StatusCode, URL: url, Body: string(snippet)}
		}
		if out == nil {
			_, err := io.Copy(io.Discard, resp.Body)
			return err
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return retry.Do(ctx, op, c.Retry)
}
