// Command supportbot is the entry point for the documentation-grounded
// customer support assistant. It provides a CLI (via Cobra) that runs the
// streaming chat server, previews ingestion and asks questions of a running
// server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/supportbot-go/cmd/supportbot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
