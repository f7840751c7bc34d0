package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthChecker probes a backend without generating tokens.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// httpCheck issues a GET against a cheap listing endpoint of the backend.
type httpCheck struct {
	url    string
	header http.Header
	client *http.Client
}

// HealthCheck returns nil when the endpoint answers 2xx.
func (h *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header = h.header.Clone()

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// NewHealthCheck returns a zero-cost probe for the configured backend: the
// model listing endpoint for Ollama, OpenAI and Azure. It returns nil for
// backends without one; callers then fall back to a generate probe.
func NewHealthCheck(cfg *Config) HealthChecker {
	client := &http.Client{Timeout: 5 * time.Second}
	h := http.Header{}

	switch cfg.Backend {
	case BackendOllama:
		return &httpCheck{url: strings.TrimRight(cfg.Ollama.Host, "/") + "/api/tags", header: h, client: client}
	case BackendOpenAI:
		base := cfg.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		h.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
		return &httpCheck{url: strings.TrimRight(base, "/") + "/models", header: h, client: client}
	case BackendAzure:
		h.Set("api-key", cfg.AzureOpenAI.APIKey)
		url := strings.TrimRight(cfg.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" + cfg.AzureOpenAI.APIVersion
		return &httpCheck{url: url, header: h, client: client}
	default:
		return nil
	}
}
