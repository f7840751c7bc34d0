package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/supportbot-go/internal/agent"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 3000).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// outlast ChatTimeout or long answers are cut off mid-stream.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one answer, planning and streaming included
	// (default: 5m).
	ChatTimeout time.Duration
	// UploadDir is where uploaded files are saved before ingestion
	// (default: $TMPDIR/supportbot-uploads).
	UploadDir string
	// MaxUploadBytes caps the multipart body of POST /upload (default: 10 MiB).
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// IndexSize, when set, backs the supportbot_index_chunks gauge.
	IndexSize func() int
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Answerer streams one answer through emit. [*agent.Generator] satisfies it;
// tests inject a fake.
type Answerer interface {
	Answer(ctx context.Context, req *agent.Request, emit agent.Emitter) (*agent.Result, error)
}

// FileIngester adds a saved upload to the live index.
// [*ingestion.Pipeline] satisfies it.
type FileIngester interface {
	IngestFile(ctx context.Context, path string) (int, error)
}

// Server is the HTTP server that fronts the answer generator.
type Server struct {
	// answerer handles POST /api/chat.
	answerer Answerer
	// ingester handles POST /upload. Nil disables the route.
	ingester FileIngester
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's question.
	Message string `json:"message"`
	// ThreadID continues an earlier conversation. Empty starts a new one.
	ThreadID string `json:"threadId"`
}

// chatEvent is the JSON payload of every SSE frame on /api/chat. Each frame
// carries the full answer so far, not a delta.
type chatEvent struct {
	Message  chatMessage `json:"message"`
	ThreadID string      `json:"threadId,omitempty"`
	Done     bool        `json:"done,omitempty"`
}

// chatMessage mirrors the message envelope the widget already parses.
type chatMessage struct {
	Content chatContent `json:"content"`
}

// chatContent holds the answer text as a single-element parts list.
type chatContent struct {
	Parts []string `json:"parts"`
}

// errorResponse is the JSON body of every non-2xx response and of the SSE
// error event.
type errorResponse struct {
	Error string `json:"error"`
}

// uploadResponse is the JSON body of a successful POST /upload.
type uploadResponse struct {
	Message string `json:"message"`
	File    string `json:"file"`
	Chunks  int    `json:"chunks"`
}
