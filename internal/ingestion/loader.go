// Package ingestion loads the support documentation: it fetches remote pages
// and reads local files, extracts their readable text, and splits it into
// bounded, overlapping chunks ready for the embedding index.
//
// Loading is best effort. A source that cannot be fetched or parsed is logged
// and skipped; the remaining sources still produce chunks.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/54b3r/supportbot-go/internal/logging"
	"github.com/54b3r/supportbot-go/internal/rag"
)

// ErrUnsupportedFile is returned for local files whose type cannot be read
// as text.
var ErrUnsupportedFile = errors.New("ingestion: unsupported file type")

// Source is one document to load: an http(s) URL or a local file path.
type Source struct {
	Location string
}

// IsRemote reports whether the source is fetched over HTTP.
func (s Source) IsRemote() bool {
	u, err := url.Parse(s.Location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Document is the extracted text of one source before splitting.
type Document struct {
	// Source is the location the text came from.
	Source string

	// Text is the readable content.
	Text string

	// Metadata is copied onto every chunk of the document.
	Metadata map[string]any
}

// Loader fetches, extracts and splits documents.
type Loader struct {
	// cfg holds the resolved configuration.
	cfg *Config

	// splitter cuts document text into chunks.
	splitter *Splitter

	// httpClient fetches remote sources.
	httpClient *http.Client

	// limiter paces remote fetches so a batch does not hammer one host.
	limiter *rate.Limiter

	// converter turns extracted HTML into Markdown.
	converter *md.Converter
}

// NewLoader constructs a Loader. cfg may be nil.
func NewLoader(cfg *Config) *Loader {
	c := cfg.withDefaults()

	limit := rate.Limit(c.FetchRate)
	if c.FetchRate < 0 {
		limit = rate.Inf
	}

	return &Loader{
		cfg:        c,
		splitter:   NewSplitter(c.ChunkSize, c.ChunkOverlap, c.Separators),
		httpClient: &http.Client{Timeout: c.HTTPTimeout},
		limiter:    rate.NewLimiter(limit, c.FetchBurst),
		converter:  newConverter(),
	}
}

// Splitter returns the splitter the loader uses.
func (l *Loader) Splitter() *Splitter { return l.splitter }

// Load loads every source and returns the chunks of those that succeeded, in
// source order. It never fails: sources that error are logged and skipped,
// and when all of them fail the result is empty.
func (l *Loader) Load(ctx context.Context, sources []Source) []rag.Chunk {
	log := logging.FromContext(ctx)

	docs := make([]*Document, len(sources))
	var g errgroup.Group
	g.SetLimit(l.cfg.Concurrency)
	for i, src := range sources {
		g.Go(func() error {
			doc, err := l.LoadDocument(ctx, src)
			if err != nil {
				log.Warn("ingestion: source skipped", slog.String("source", src.Location), slog.Any("error", err))
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	_ = g.Wait()

	chunks := []rag.Chunk{}
	loaded := 0
	for _, d := range docs {
		if d == nil {
			continue
		}
		loaded++
		chunks = append(chunks, l.Chunk(d)...)
	}

	log.Info("ingestion: sources loaded",
		slog.Int("sources", len(sources)),
		slog.Int("loaded", loaded),
		slog.Int("chunks", len(chunks)),
	)
	return chunks
}

// LoadFile reads and chunks a single local file. Unlike Load it returns the
// error, so callers can report it.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]rag.Chunk, error) {
	doc, err := l.LoadDocument(ctx, Source{Location: path})
	if err != nil {
		return nil, err
	}
	chunks := l.Chunk(doc)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ingestion: %s: no text content", path)
	}
	return chunks, nil
}

// LoadDocument fetches or reads one source and extracts its text.
func (l *Loader) LoadDocument(ctx context.Context, src Source) (*Document, error) {
	var (
		ex  *extracted
		err error
	)
	if src.IsRemote() {
		ex, err = l.fetch(ctx, src.Location)
	} else {
		ex, err = l.readFile(src.Location)
	}
	if err != nil {
		return nil, fmt.Errorf("ingestion: %s: %w", src.Location, err)
	}

	meta := InferMetadata(src.Location).Map()
	if ex.Title != "" {
		meta["title"] = ex.Title
	}
	return &Document{Source: src.Location, Text: ex.Text, Metadata: meta}, nil
}

// Chunk splits a document and stamps each chunk with the document metadata
// and its position.
func (l *Loader) Chunk(doc *Document) []rag.Chunk {
	parts := l.splitter.Split(doc.Text)
	out := make([]rag.Chunk, len(parts))
	for i, p := range parts {
		meta := make(map[string]any, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta["chunk"] = i
		out[i] = rag.Chunk{Content: p, Metadata: meta}
	}
	return out
}

// fetch retrieves a remote page, waiting on the politeness limiter first.
func (l *Loader) fetch(ctx context.Context, rawURL string) (*extracted, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", l.cfg.UserAgent)
	req.Header.Set("Accept", "text/html, text/plain, text/markdown")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	page := string(body)
	if looksLikeHTML(resp.Header.Get("Content-Type"), page) {
		return l.extractHTML(page)
	}
	return plainText(page)
}

// readFile reads a local text, Markdown or HTML file.
func (l *Loader) readFile(path string) (*extracted, error) {
	kind := kindOf(path)
	if kind == kindUnsupported {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, l.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	if kind == kindHTML {
		return l.extractHTML(string(body))
	}
	return plainText(string(body))
}

// plainText wraps non-HTML content, rejecting empty documents.
func plainText(s string) (*extracted, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("no text content")
	}
	return &extracted{Text: s}, nil
}
