package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single embedding call. Callers may supply a
// shorter deadline through the context.
const DefaultTimeout = 5 * time.Second

// HTTPProvider calls an embedding model served over HTTP. The endpoint
// accepts {"text": "..."} and responds {"embedding": [...]}.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// NewHTTPProvider creates a provider for the given endpoint. A zero timeout
// selects DefaultTimeout.
func NewHTTPProvider(endpoint string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProvider{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests an embedding for the text. Transport failures, non-2xx
// responses, and timeouts all surface as ErrUnavailable so callers can
// apply the fail-open policy uniformly.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(out.Embedding) != Dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadVector, len(out.Embedding), Dimensions)
	}
	return out.Embedding, nil
}

// Dimensions returns the fixed vector length.
func (p *HTTPProvider) Dimensions() int {
	return Dimensions
}
