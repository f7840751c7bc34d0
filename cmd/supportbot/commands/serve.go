package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/supportbot-go/internal/agent"
	"github.com/54b3r/supportbot-go/internal/ingestion"
	"github.com/54b3r/supportbot-go/internal/logging"
	"github.com/54b3r/supportbot-go/internal/provider"
	"github.com/54b3r/supportbot-go/internal/server"
	"github.com/54b3r/supportbot-go/internal/store"
	"github.com/54b3r/supportbot-go/internal/tools"
	"github.com/54b3r/supportbot-go/internal/tracing"
)

// NewServeCmd constructs the `supportbot serve` command, which ingests the
// configured documentation and starts the HTTP server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index the documentation and start the chat server",
		Long: `Fetch and index every source in SUPPORTBOT_SOURCES, then start the HTTP
server.

Endpoints:
  POST /api/chat     streamed answer (Server-Sent Events)
  POST /upload       add a text, Markdown or HTML file to the live index
  GET  /api/health   liveness
  GET  /api/ready    readiness (chat backend and index)
  GET  /metrics      Prometheus metrics

The index lives in memory and is rebuilt on every start.

Examples:
  supportbot serve
  supportbot serve --port 8080
  SUPPORTBOT_SOURCES=https://docs.example.com/start,./docs/faq.md supportbot serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			// Flags win; otherwise env and config, which are loaded after
			// flag defaults are computed.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("SUPPORTBOT_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("SUPPORTBOT_PORT", port)
			}

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			flush, traced := tracing.Install()
			defer flush()
			log.Info("langfuse tracing", slog.Bool("enabled", traced))

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("backend", string(providerCfg.Backend)),
				slog.String("model", providerCfg.ModelName()),
			)

			idx, err := buildIndex(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = idx.Shutdown(context.Background()) }()

			pipeline, err := ingestion.NewPipeline(ingestion.NewLoader(ingestion.ConfigFromEnv()), idx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			sources := ingestion.SourcesFromEnv()
			if len(sources) == 0 {
				log.Warn("no documentation sources configured, answers will have no context",
					slog.String("hint", "set SUPPORTBOT_SOURCES or documents.sources in the config file"),
				)
			}
			start := time.Now()
			n, err := pipeline.Ingest(ctx, sources, progressLogger(log))
			switch {
			case errors.Is(err, ingestion.ErrIndexRejected):
				// Serve anyway; answers degrade to no context.
				log.Error("startup ingestion rejected by index", slog.Any("error", err))
			case err != nil:
				return fmt.Errorf("serve: ingest: %w", err)
			default:
				log.Info("startup ingestion complete",
					slog.Int("sources", len(sources)),
					slog.Int("chunks", n),
					slog.Duration("duration", time.Since(start)),
				)
			}

			threads, err := store.Open(store.WithMaxTurns(getEnvInt("HISTORY_MAX_TURNS", 0)))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = threads.Close() }()

			productName := getEnvOrDefault("SUPPORTBOT_PRODUCT_NAME", "")
			gen, err := agent.New(ctx, &agent.Config{
				ChatModel: chatModel,
				Retriever: tools.NewRetrieve(idx, &tools.RetrieveConfig{
					TopK:        getEnvInt("RETRIEVE_TOP_K", 0),
					ProductName: productName,
				}),
				Threads:          threads,
				ProductName:      productName,
				MaxToolRounds:    getEnvInt("MAX_TOOL_ROUNDS", 0),
				HistoryDepth:     getEnvInt("HISTORY_DEPTH", 0),
				MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			pingers := buildPingers(chatModel, providerCfg, idx, log)
			if err := server.NewMultiPinger(pingers...).Ping(ctx); err != nil {
				log.Warn("not ready at startup", slog.Any("error", err))
			}

			srv, err := server.New(gen, pipeline, &server.Config{
				Host:        host,
				Port:        port,
				ChatTimeout: getEnvDuration("CHAT_TIMEOUT", 0),
				UploadDir:   getEnvOrDefault("UPLOAD_DIR", ""),
				Logger:      log,
				Pingers:     pingers,
				IndexSize:   idx.Len,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 3000, "TCP port to listen on")

	return cmd
}
