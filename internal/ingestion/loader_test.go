package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/54b3r/supportbot-go/internal/logging"
	"github.com/54b3r/supportbot-go/internal/rag"
)

const docsPage = `<!DOCTYPE html>
<html><head><title>Refunds | Example Docs</title><style>.x{}</style></head>
<body>
<nav>Home Pricing Docs</nav>
<div class="docs-content">
<h1>Refunds</h1>
<p>Refunds are issued within 5 business days.</p>
<nav>Previous Next</nav>
<p>Contact billing for partial refunds.</p>
<a class="edit-page-link" href="#">Edit this page</a>
<script>track()</script>
</div>
<footer>Copyright</footer>
</body></html>`

// docsServer serves a fixed set of paths; anything else is a 404.
func docsServer(t *testing.T, pages map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".txt") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testLoader() *Loader {
	return NewLoader(&Config{ChunkSize: 200, ChunkOverlap: 20, FetchRate: -1})
}

func testCtx() context.Context {
	return logging.WithLogger(context.Background(), logging.Discard())
}

func joined(chunks []rag.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, "\n")
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

func TestSource_IsRemote(t *testing.T) {
	t.Parallel()

	tests := []struct {
		loc  string
		want bool
	}{
		{"https://docs.example.com/a", true},
		{"http://localhost:8080/faq", true},
		{"./docs/faq.md", false},
		{"/abs/path.txt", false},
		{"ftp://example.com/file", false},
		{"https://", false},
	}
	for _, tc := range tests {
		if got := (Source{Location: tc.loc}).IsRemote(); got != tc.want {
			t.Errorf("IsRemote(%q) = %v, want %v", tc.loc, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Remote loading
// ---------------------------------------------------------------------------

func TestLoader_ExtractsContentAndStripsChrome(t *testing.T) {
	t.Parallel()
	srv, _ := docsServer(t, map[string]string{"/docs/billing/refunds": docsPage})

	chunks := testLoader().Load(testCtx(), []Source{{Location: srv.URL + "/docs/billing/refunds"}})
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	text := joined(chunks)
	for _, want := range []string{"Refunds are issued within 5 business days.", "Contact billing for partial refunds."} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in %q", want, text)
		}
	}
	for _, unwanted := range []string{"Home Pricing", "Previous Next", "Edit this page", "track()", "Copyright"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("chrome %q leaked into %q", unwanted, text)
		}
	}

	meta := chunks[0].Metadata
	if meta["title"] != "Refunds | Example Docs" {
		t.Errorf("title = %v", meta["title"])
	}
	if meta["section"] != "billing" || meta["file"] != "refunds" || meta["chunk"] != 0 {
		t.Errorf("unexpected metadata %v", meta)
	}
	if chunks[0].Source() != srv.URL+"/docs/billing/refunds" {
		t.Errorf("source = %q", chunks[0].Source())
	}
}

func TestLoader_SelectorFallsBackToBody(t *testing.T) {
	t.Parallel()
	srv, _ := docsServer(t, map[string]string{
		"/plain": `<html><body><nav>menu</nav><p>Whole body content.</p></body></html>`,
	})

	chunks := testLoader().Load(testCtx(), []Source{{Location: srv.URL + "/plain"}})
	text := joined(chunks)
	if !strings.Contains(text, "Whole body content.") {
		t.Errorf("expected body fallback, got %q", text)
	}
	if strings.Contains(text, "menu") {
		t.Errorf("nav not stripped: %q", text)
	}
}

func TestLoader_PlainTextSource(t *testing.T) {
	t.Parallel()
	srv, _ := docsServer(t, map[string]string{"/faq.txt": "Q: How do I log in?\n\nA: Use SSO."})

	chunks := testLoader().Load(testCtx(), []Source{{Location: srv.URL + "/faq.txt"}})
	if got := joined(chunks); !strings.Contains(got, "A: Use SSO.") {
		t.Errorf("plain text not loaded: %q", got)
	}
}

func TestLoader_SkipsFailingSourcesAndKeepsOrder(t *testing.T) {
	t.Parallel()
	srv, _ := docsServer(t, map[string]string{
		"/one.txt": "First document.",
		"/two.txt": "Second document.",
	})

	chunks := testLoader().Load(testCtx(), []Source{
		{Location: srv.URL + "/one.txt"},
		{Location: srv.URL + "/missing"},
		{Location: "/does/not/exist.md"},
		{Location: srv.URL + "/two.txt"},
	})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Content != "First document." || chunks[1].Content != "Second document." {
		t.Errorf("order not preserved: %q", joined(chunks))
	}
}

func TestLoader_AllSourcesFail(t *testing.T) {
	t.Parallel()
	srv, _ := docsServer(t, nil)

	chunks := testLoader().Load(testCtx(), []Source{{Location: srv.URL + "/a"}, {Location: srv.URL + "/b"}})
	if chunks == nil || len(chunks) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", chunks)
	}
}

func TestLoader_NoSources(t *testing.T) {
	t.Parallel()
	if got := testLoader().Load(testCtx(), nil); len(got) != 0 {
		t.Errorf("expected no chunks, got %d", len(got))
	}
}

func TestLoader_CancelledContextSkipsFetch(t *testing.T) {
	t.Parallel()
	srv, hits := docsServer(t, map[string]string{"/a.txt": "text"})

	ctx, cancel := context.WithCancel(testCtx())
	cancel()
	l := NewLoader(&Config{FetchRate: 0.001})
	l.limiter.Allow() // drain the burst so Wait must block

	if got := l.Load(ctx, []Source{{Location: srv.URL + "/a.txt"}}); len(got) != 0 {
		t.Errorf("expected no chunks, got %d", len(got))
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times after cancellation", hits.Load())
	}
}

// ---------------------------------------------------------------------------
// Local files
// ---------------------------------------------------------------------------

func TestLoader_LoadFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return p
	}

	md := write("setup.md", "# Setup\n\nInstall the agent.\n\nThen restart.")
	html := write("page.html", docsPage)
	pdf := write("manual.pdf", "%PDF-1.4")
	empty := write("empty.txt", "   \n")

	l := testLoader()
	ctx := testCtx()

	chunks, err := l.LoadFile(ctx, md)
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	if !strings.Contains(joined(chunks), "Install the agent.") || chunks[0].Metadata["file"] != "setup.md" {
		t.Errorf("markdown chunks = %+v", chunks)
	}

	chunks, err = l.LoadFile(ctx, html)
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if got := joined(chunks); strings.Contains(got, "Copyright") || !strings.Contains(got, "Refunds are issued") {
		t.Errorf("html chunks = %q", got)
	}

	if _, err := l.LoadFile(ctx, pdf); !errors.Is(err, ErrUnsupportedFile) {
		t.Errorf("pdf: err = %v, want ErrUnsupportedFile", err)
	}
	if _, err := l.LoadFile(ctx, empty); err == nil {
		t.Error("empty file: expected error")
	}
	if _, err := l.LoadFile(ctx, filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("missing file: expected error")
	}
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

type recordingIndex struct {
	batches [][]rag.Chunk
	reject  bool
}

func (r *recordingIndex) Add(_ context.Context, chunks []rag.Chunk) bool {
	if r.reject {
		return false
	}
	r.batches = append(r.batches, chunks)
	return true
}

func TestPipeline_Ingest(t *testing.T) {
	t.Parallel()
	srv, _ := docsServer(t, map[string]string{"/a.txt": "Alpha doc.", "/b.txt": "Beta doc."})

	idx := &recordingIndex{}
	p, err := NewPipeline(testLoader(), idx)
	if err != nil {
		t.Fatal(err)
	}

	var msgs []string
	n, err := p.Ingest(testCtx(), []Source{{Location: srv.URL + "/a.txt"}, {Location: srv.URL + "/b.txt"}}, func(m string) {
		msgs = append(msgs, m)
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 2 || len(idx.batches) != 1 || len(idx.batches[0]) != 2 {
		t.Errorf("n=%d batches=%v", n, idx.batches)
	}
	if len(msgs) == 0 {
		t.Error("expected progress messages")
	}
}

func TestPipeline_IndexRejects(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("content"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, _ := NewPipeline(testLoader(), &recordingIndex{reject: true})
	if _, err := p.IngestFile(testCtx(), path); !errors.Is(err, ErrIndexRejected) {
		t.Errorf("IngestFile err = %v, want ErrIndexRejected", err)
	}
	if _, err := p.Ingest(testCtx(), []Source{{Location: path}}, nil); !errors.Is(err, ErrIndexRejected) {
		t.Errorf("Ingest err = %v, want ErrIndexRejected", err)
	}
}

func TestNewPipeline_Validates(t *testing.T) {
	t.Parallel()
	if _, err := NewPipeline(nil, &recordingIndex{}); err == nil {
		t.Error("expected error for nil loader")
	}
	if _, err := NewPipeline(testLoader(), nil); err == nil {
		t.Error("expected error for nil index")
	}
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestParseSources(t *testing.T) {
	t.Parallel()
	got := ParseSources(" https://a.example/x ,\n./b.md,, \n")
	if len(got) != 2 || got[0].Location != "https://a.example/x" || got[1].Location != "./b.md" {
		t.Errorf("ParseSources = %+v", got)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("CONTENT_SELECTOR", "main")
	t.Setenv("FETCH_RATE", "not-a-number")

	c := ConfigFromEnv().withDefaults()
	if c.ChunkSize != 500 || c.ChunkOverlap != 50 || c.ContentSelector != "main" {
		t.Errorf("unexpected config %+v", c)
	}
	if c.FetchRate != 2 {
		t.Errorf("FetchRate = %v, want default 2 for malformed value", c.FetchRate)
	}
}
