package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/54b3r/supportbot-go/internal/rag"
)

// ErrIndexRejected is returned when the index refuses a batch, typically
// because embedding failed or the index is shut down.
var ErrIndexRejected = errors.New("ingestion: index rejected chunks")

// Indexer is the part of the embedding index the pipeline writes to.
type Indexer interface {
	Add(ctx context.Context, chunks []rag.Chunk) bool
}

// Pipeline orchestrates the load -> chunk -> index flow for the startup
// document set and for uploaded files.
type Pipeline struct {
	// loader fetches and splits documents.
	loader *Loader

	// index receives the chunks.
	index Indexer
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(loader *Loader, index Indexer) (*Pipeline, error) {
	if loader == nil {
		return nil, fmt.Errorf("ingestion: loader must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	return &Pipeline{loader: loader, index: index}, nil
}

// Ingest loads every source and adds the resulting chunks to the index in
// one batch. Sources that fail to load are skipped by the loader; the
// returned count is the number of chunks indexed.
// Progress is reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, sources []Source, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	progress(fmt.Sprintf("loading %d sources", len(sources)))
	chunks := p.loader.Load(ctx, sources)
	progress(fmt.Sprintf("split into %d chunks", len(chunks)))

	if len(chunks) == 0 {
		return 0, nil
	}
	if !p.index.Add(ctx, chunks) {
		return 0, ErrIndexRejected
	}

	progress(fmt.Sprintf("indexed %d chunks", len(chunks)))
	return len(chunks), nil
}

// IngestFile loads one local file and adds its chunks to the index.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (int, error) {
	chunks, err := p.loader.LoadFile(ctx, path)
	if err != nil {
		return 0, err
	}
	if !p.index.Add(ctx, chunks) {
		return 0, fmt.Errorf("%w: %s", ErrIndexRejected, path)
	}
	return len(chunks), nil
}
