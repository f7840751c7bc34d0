package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/supportbot-go/internal/client"
)

// NewAskCmd constructs the `supportbot ask` command, which sends one
// question to a running server and prints the answer as it streams.
func NewAskCmd() *cobra.Command {
	var serverURL string
	var threadID string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a running supportbot server a question",
		Long: `Send a question to POST /api/chat on a running server and print the answer
as it streams. The thread id is printed to stderr afterwards; pass it back
with --thread to ask a follow-up in the same conversation.

Examples:
  supportbot ask "how do I reset my password?"
  supportbot ask --thread thread_0b6f... "and on mobile?"
  supportbot ask --server http://support.internal:3000 "what plans are there?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := &client.Client{BaseURL: serverURL}
			out := cmd.OutOrStdout()
			p := &snapshotPrinter{w: out}

			ex, err := c.Chat(cmd.Context(), strings.Join(args, " "), threadID, p.update)
			fmt.Fprintln(out)
			if ex != nil && ex.ThreadID != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", ex.ThreadID)
			}
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:3000", "Base URL of the supportbot server")
	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "Continue an existing conversation")

	return cmd
}

// snapshotPrinter turns full-text snapshots back into incremental terminal
// output.
type snapshotPrinter struct {
	w       io.Writer
	printed string
}

// update prints the part of text not yet on screen. A snapshot that does
// not extend what was printed is written in full on a new line.
func (p *snapshotPrinter) update(text string) {
	if rest, ok := strings.CutPrefix(text, p.printed); ok {
		fmt.Fprint(p.w, rest)
	} else {
		fmt.Fprint(p.w, "\n"+text)
	}
	p.printed = text
}
