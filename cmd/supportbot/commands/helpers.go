package commands

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/supportbot-go/internal/embedder"
	"github.com/54b3r/supportbot-go/internal/ingestion"
	"github.com/54b3r/supportbot-go/internal/provider"
	"github.com/54b3r/supportbot-go/internal/rag"
	"github.com/54b3r/supportbot-go/internal/server"
)

// buildIndex constructs the embedder and an initialised in-memory index.
// The caller owns the index and must call Shutdown.
func buildIndex(ctx context.Context, log *slog.Logger) (*rag.Index, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("backend", embedder.Backend()))

	idx := rag.NewIndex(emb, &rag.IndexOptions{DefaultK: getEnvInt("SEARCH_TOP_K", 0)})
	if err := idx.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialise index: %w", err)
	}
	return idx, nil
}

// buildPingers returns the readiness probes for the chat backend and the
// index. Backends without a listing endpoint fall back to a generate probe.
func buildPingers(chatModel model.ToolCallingChatModel, cfg *provider.Config, idx *rag.Index, log *slog.Logger) []server.Pinger {
	check := provider.NewHealthCheck(cfg)
	if check == nil {
		log.Warn("readiness: no zero-cost health check for backend, /api/ready will consume tokens",
			slog.String("backend", string(cfg.Backend)),
		)
	}
	return []server.Pinger{
		server.NewLLMPinger(chatModel, check, string(cfg.Backend)),
		server.NewIndexPinger(idx),
	}
}

// progressLogger adapts the pipeline progress callback to log lines.
func progressLogger(log *slog.Logger) func(string) {
	return func(msg string) { log.Info("ingest: " + msg) }
}

func getEnvOrDefault(key, fallback string) string {
	return cmp.Or(os.Getenv(key), fallback)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration parses key as a Go duration ("90s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// sourcesOrEnv returns the --source flag values, or SUPPORTBOT_SOURCES when
// none were given.
func sourcesOrEnv(flags []string) []ingestion.Source {
	if len(flags) == 0 {
		return ingestion.SourcesFromEnv()
	}
	out := make([]ingestion.Source, 0, len(flags))
	for _, f := range flags {
		out = append(out, ingestion.ParseSources(f)...)
	}
	return out
}
