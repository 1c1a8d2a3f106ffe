package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"marketdata-service/internal/application"
	"marketdata-service/internal/infrastructure/httpx"
)

// ERAPIProvider fetches live exchange rates from ER-API. Without an
// APIKey it uses the open keyless endpoint (open.er-api.com); with one
// the key becomes a path segment, as the paid tier expects. One attempt
// per call; the caller owns retries.
type ERAPIProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

var _ application.RateAPI = (*ERAPIProvider)(nil)

type erAPIResp struct {
	Result    string             `json:"result"`
	BaseCode  string             `json:"base_code"`
	Rates     map[string]float64 `json:"rates"`
	ErrorType string             `json:"error-type,omitempty"`
}

func (p *ERAPIProvider) FetchRate(ctx context.Context, base, target string) (float64, error) {
	if p.BaseURL == "" {
		return 0, errors.New("erapi: missing base url")
	}

	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("erapi: invalid base url: %w", err)
	}
	segments := []string{"latest", base}
	if p.APIKey != "" {
		segments = append([]string{p.APIKey}, segments...)
	}
	u.Path, err = url.JoinPath(u.Path, segments...)
	if err != nil {
		return 0, fmt.Errorf("erapi: build path: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("erapi: create request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("erapi: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, &httpx.StatusError{Code: resp.StatusCode, URL: u.String()}
	}

	var body erAPIResp
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("erapi: decode response: %w", err)
	}
	if body.Result != "success" {
		if body.ErrorType != "" {
			return 0, fmt.Errorf("erapi: %s", body.ErrorType)
		}
		return 0, errors.New("erapi: unsuccessful response")
	}

	rate, ok := body.Rates[target]
	if !ok {
		return 0, fmt.Errorf("erapi: missing rate for %s", target)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("erapi: non-positive rate %v for %s", rate, target)
	}
	return rate, nil
}
