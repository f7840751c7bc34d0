// Package commands defines all Cobra CLI commands for the supportbot binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/supportbot-go/internal/audit"
	"github.com/54b3r/supportbot-go/internal/config"
	"github.com/54b3r/supportbot-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "supportbot",
		Short: "supportbot: a documentation-grounded support assistant",
		Long: `supportbot answers customer questions from your product documentation.

Documentation pages and files listed in SUPPORTBOT_SOURCES are fetched,
split into chunks and embedded into an in-memory index at startup. Each
question is planned by the chat model, which may retrieve relevant chunks
before the answer is streamed back over Server-Sent Events.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.supportbot/config.yaml). A ./.env file is read
first and never overrides variables already set.
See 'supportbot --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv(log); err != nil {
				return err
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// LOG_LEVEL and LOG_FORMAT may have come from the files above.
			log = logging.New()
			slog.SetDefault(log)
			ctx := logging.WithLogger(cmd.Context(), log)
			cmd.SetContext(ctx)

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(ctx, log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.supportbot/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewAskCmd(),
		NewVersionCmd(),
	)

	return root
}
