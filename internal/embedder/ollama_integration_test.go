//go:build integration

package embedder

import (
	"context"
	"testing"
	"time"

	"github.com/54b3r/supportbot-go/internal/rag"
)

// TestOllamaEmbedder_Integration embeds a few support answers with a locally
// running Ollama and checks that the index ranks the matching one first.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve   (or it must already be running)
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
//
// In CI, set OLLAMA_HOST if Ollama is not on localhost:11434.
func TestOllamaEmbedder_Integration(t *testing.T) {
	model := getEnvOrDefault("EMBEDDING_MODEL", "nomic-embed-text")
	emb := NewOllamaEmbedder(&OllamaConfig{
		Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		Model: model,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	vecs, err := emb.Embed(ctx, []string{"probe"})
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	t.Logf("model=%s dim=%d", model, len(vecs[0]))

	idx := rag.NewIndex(emb, nil)
	if err := idx.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer func() { _ = idx.Shutdown(ctx) }()

	chunks := []rag.Chunk{
		{Content: "To reset your password, open Settings, choose Security and click Reset password.", Metadata: map[string]any{"source": "security"}},
		{Content: "Invoices are emailed on the first day of each month and can be downloaded from Billing.", Metadata: map[string]any{"source": "billing"}},
		{Content: "The mobile app supports offline mode for notes created in the last 30 days.", Metadata: map[string]any{"source": "mobile"}},
	}
	if !idx.Add(ctx, chunks) {
		t.Fatal("Add rejected the batch")
	}

	got := idx.Search(ctx, "I forgot my password", 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Source() != "security" {
		t.Errorf("top result %q, want security", got[0].Source())
	}
}
