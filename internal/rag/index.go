package rag

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/54b3r/supportbot-go/internal/logging"
)

// DefaultSearchK is the number of results [Index.Search] returns when called
// with k <= 0.
const DefaultSearchK = 4

// IndexOptions configures an [Index].
type IndexOptions struct {
	// DefaultK replaces a non-positive k in Search. Defaults to DefaultSearchK.
	DefaultK int
}

// Index is an in-memory nearest-neighbour index over embedded chunks.
//
// The index is owned by whoever constructs it: call [Index.Init] before use
// and [Index.Shutdown] when done. Search calls run concurrently under a read
// lock; Add calls are serialized end to end so the entries of one batch are
// always contiguous and never interleave with another batch.
//
// Add and Search never return errors. Embedding failures are logged and
// surface as false or as an empty result, which callers treat as "no context".
type Index struct {
	embedder Embedder
	defaultK int

	// addMu serializes Add, including the embedding call.
	addMu sync.Mutex

	// mu guards entries and open.
	mu      sync.RWMutex
	entries []Entry
	open    bool
}

// NewIndex returns an index that embeds with embedder. opts may be nil.
func NewIndex(embedder Embedder, opts *IndexOptions) *Index {
	k := DefaultSearchK
	if opts != nil && opts.DefaultK > 0 {
		k = opts.DefaultK
	}
	return &Index{embedder: embedder, defaultK: k}
}

// Init opens the index for Add and Search. Calling Init on an open index is a
// no-op.
func (x *Index) Init(_ context.Context) error {
	if x.embedder == nil {
		return errors.New("rag: index has no embedder")
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.open = true
	return nil
}

// Shutdown drops every entry and closes the index. Later Add calls return
// false and Search returns no results until Init is called again.
func (x *Index) Shutdown(_ context.Context) error {
	x.addMu.Lock()
	defer x.addMu.Unlock()

	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = nil
	x.open = false
	return nil
}

// Len returns the number of stored entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Add embeds chunks and appends them to the index. Identical content added
// twice yields two entries. It returns false, leaving the index unchanged,
// when the index is closed or the embedding call fails.
func (x *Index) Add(ctx context.Context, chunks []Chunk) bool {
	log := logging.FromContext(ctx)

	x.addMu.Lock()
	defer x.addMu.Unlock()

	if !x.isOpen() {
		log.Warn("rag: add on closed index", "chunks", len(chunks))
		return false
	}
	if len(chunks) == 0 {
		return true
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		log.Warn("rag: embedding failed, chunks not added", "chunks", len(chunks), "error", err)
		return false
	}
	if len(vectors) != len(chunks) {
		log.Warn("rag: embedder returned wrong vector count", "want", len(chunks), "got", len(vectors))
		return false
	}

	batch := make([]Entry, len(chunks))
	for i, c := range chunks {
		batch[i] = Entry{Chunk: c.clone(), Vector: slices.Clone(vectors[i])}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if !x.open {
		return false
	}
	x.entries = append(x.entries, batch...)
	log.Debug("rag: chunks added", "added", len(batch), "total", len(x.entries))
	return true
}

// scored is a ranking candidate: the entry position and its similarity.
type scored struct {
	pos   int
	score float64
}

// Search returns up to k chunks ranked by descending cosine similarity to
// query. Equal scores keep insertion order. A non-positive k uses the
// index default. Entries whose dimension differs from the query vector are
// skipped.
func (x *Index) Search(ctx context.Context, query string, k int) []Chunk {
	log := logging.FromContext(ctx)
	if k <= 0 {
		k = x.defaultK
	}
	if !x.isOpen() || x.Len() == 0 {
		return []Chunk{}
	}

	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		log.Warn("rag: query embedding failed, returning no results", "error", err)
		return []Chunk{}
	}
	if len(vectors) != 1 {
		log.Warn("rag: embedder returned wrong vector count for query", "got", len(vectors))
		return []Chunk{}
	}
	q := vectors[0]

	x.mu.RLock()
	defer x.mu.RUnlock()

	candidates := make([]scored, 0, len(x.entries))
	skipped := 0
	for i, e := range x.entries {
		s, err := CosineSimilarity(q, e.Vector)
		if err != nil {
			skipped++
			continue
		}
		candidates = append(candidates, scored{pos: i, score: s})
	}
	if skipped > 0 {
		log.Debug("rag: entries skipped during search", "skipped", skipped)
	}

	slices.SortStableFunc(candidates, func(a, b scored) int {
		return cmp.Compare(b.score, a.score)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Chunk, len(candidates))
	for i, c := range candidates {
		out[i] = x.entries[c.pos].Chunk
	}
	return out
}

func (x *Index) isOpen() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.open
}
