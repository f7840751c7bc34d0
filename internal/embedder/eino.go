// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. OpenAI and Azure OpenAI go
// through the eino embedding component; Ollama is called over plain HTTP.
package embedder

import (
	"context"
	"fmt"
	"time"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
)

// EinoEmbedder adapts an eino embedding component, which returns float64
// vectors, to rag.Embedder. It is safe for concurrent use when the wrapped
// component is.
type EinoEmbedder struct {
	embedder einoEmbedding.Embedder
	name     string
}

// NewEinoEmbedder wraps e. name is used in error messages.
func NewEinoEmbedder(e einoEmbedding.Embedder, name string) *EinoEmbedder {
	return &EinoEmbedder{embedder: e, name: name}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *EinoEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := e.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s embedder: %w", e.name, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%s embedder: expected %d embeddings, got %d", e.name, len(texts), len(vectors))
	}

	out := make([][]float32, len(vectors))
	for i, vec := range vectors {
		out[i] = make([]float32, len(vec))
		for j, v := range vec {
			out[i][j] = float32(v)
		}
	}
	return out, nil
}

// OpenAIConfig holds the settings for an OpenAI or Azure OpenAI embedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model or Azure deployment name.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// Timeout bounds each embedding request. Defaults to 30s.
	Timeout time.Duration
}

// NewOpenAIEmbedder constructs an embedder backed by the eino OpenAI
// embedding component.
func NewOpenAIEmbedder(ctx context.Context, cfg *OpenAIConfig) (*EinoEmbedder, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ecfg := &openaiEmbed.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		ByAzure:    cfg.Azure,
		APIVersion: cfg.APIVersion,
		Timeout:    timeout,
	}
	if cfg.Dimensions > 0 {
		dims := cfg.Dimensions
		ecfg.Dimensions = &dims
	}

	name := "openai"
	if cfg.Azure {
		name = "azure"
	}

	e, err := openaiEmbed.NewEmbedder(ctx, ecfg)
	if err != nil {
		return nil, fmt.Errorf("%s embedder: %w", name, err)
	}
	return NewEinoEmbedder(e, name), nil
}
