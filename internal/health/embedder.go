package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// EmbedderChecker implements health checking for the embedding service.
type EmbedderChecker struct {
	url    string
	client *http.Client
}

// NewEmbedderChecker creates a new embedding service health checker.
// The url should be the base URL of the embedding server.
func NewEmbedderChecker(url string) *EmbedderChecker {
	return &EmbedderChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck probes the embedding server's health endpoint. The service
// exposes GET /health; reachability with any 2xx counts as healthy.
func (e *EmbedderChecker) HealthCheck(ctx context.Context) error {
	if e.url == "" {
		return fmt.Errorf("embedder url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach embedding server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("embedder unhealthy: unexpected status code %d", resp.StatusCode)
	}

	return nil
}
