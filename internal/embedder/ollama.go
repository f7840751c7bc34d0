package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaTimeout   = 60 * time.Second
	defaultOllamaBatchSize = 64

	// maxOllamaErrorBody caps how much of a failed response is read.
	maxOllamaErrorBody = 4 << 10
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host string
	// Model is the embedding model, e.g. "nomic-embed-text".
	Model string
	// Timeout bounds each /api/embed request. Defaults to 60s.
	Timeout time.Duration
	// BatchSize caps the inputs per request so that a large document set is
	// embedded in several calls. Defaults to 64.
	BatchSize int
}

// OllamaEmbedder embeds text with a local Ollama server's /api/embed
// endpoint. Safe for concurrent use.
type OllamaEmbedder struct {
	host      string
	model     string
	batchSize int
	client    *http.Client
}

// NewOllamaEmbedder returns an embedder for cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultOllamaBatchSize
	}
	return &OllamaEmbedder{
		host:      strings.TrimRight(cfg.Host, "/"),
		model:     cfg.Model,
		batchSize: batch,
		client:    &http.Client{Timeout: timeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
	// Truncate lets the server clip inputs longer than the model context
	// instead of failing the whole batch.
	Truncate bool `json:"truncate"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per input text, in input order. Inputs are sent
// in batches of at most BatchSize; the first failing batch aborts the call.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OllamaEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: batch, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusErr(resp)
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", err)
	}
	if len(result.Embeddings) != len(batch) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(batch), len(result.Embeddings))
	}
	return result.Embeddings, nil
}

// statusErr describes a non-2xx reply. Ollama usually answers with
// {"error": "..."}, but proxies in front of it may not.
func statusErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxOllamaErrorBody))
	var result ollamaEmbedResponse
	if json.Unmarshal(body, &result) == nil && result.Error != "" {
		return fmt.Errorf("ollama embedder: HTTP %d: %s", resp.StatusCode, result.Error)
	}
	return fmt.Errorf("ollama embedder: HTTP %d", resp.StatusCode)
}
