// Package rag holds the retrieval side of the answer pipeline: the chunk type
// produced by ingestion, the embedding capability, and the in-memory
// [Index] that ranks chunks by cosine similarity.
package rag

import (
	"context"
	"maps"
)

// Chunk is a bounded piece of a source document. Chunks are immutable once
// added to an [Index]; callers must not modify Metadata of chunks returned by
// [Index.Search].
type Chunk struct {
	// Content is the chunk text.
	Content string

	// Metadata holds provenance such as source, host and section.
	Metadata map[string]any
}

// clone returns a copy of c that shares no mutable state with it.
func (c Chunk) clone() Chunk {
	return Chunk{Content: c.Content, Metadata: maps.Clone(c.Metadata)}
}

// Source returns the "source" metadata value, or "" when absent.
func (c Chunk) Source() string {
	s, _ := c.Metadata["source"].(string)
	return s
}

// Entry pairs a chunk with the embedding computed for it on insertion.
type Entry struct {
	Chunk  Chunk
	Vector []float32
}

// Embedder converts text into dense vectors.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into embeddings. The returned slice is
	// parallel to texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
