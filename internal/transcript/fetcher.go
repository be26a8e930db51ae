// Package transcript defines the external video-transcript boundary.
package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher retrieves a transcript for a video URL in a preferred language.
// Errors carry backend detail; the transcript tool translates them into
// user-facing text and never lets them escape.
type Fetcher interface {
	Fetch(ctx context.Context, videoURL, language string) (string, error)
}

// HTTPFetcher calls a transcript service over HTTP.
type HTTPFetcher struct {
	endpoint string
	client   *http.Client
}

// NewHTTPFetcher creates a fetcher against the given service endpoint.
func NewHTTPFetcher(endpoint string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, videoURL, language string) (string, error) {
	q := url.Values{}
	q.Set("url", videoURL)
	q.Set("lang", language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build transcript request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcript service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read transcript response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript service returned %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode transcript response: %w", err)
	}
	return payload.Transcript, nil
}
