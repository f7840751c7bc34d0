// Package tools holds the capabilities the planner model may invoke while
// answering a question. Each tool satisfies Eino's [tool.InvokableTool] so its
// schema can be bound to a tool-calling chat model.
package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"

	"github.com/54b3r/supportbot-go/internal/rag"
)

// SupportTool is implemented by every tool the answer generator exposes. It
// extends the Eino tool contract with accessors used for logging and routing
// tool calls by name.
type SupportTool interface {
	tool.InvokableTool

	// Name returns the unique tool name registered with the model.
	Name() string

	// Description returns the LLM-facing description.
	Description() string
}

// Searcher ranks stored chunks against a query. [*rag.Index] satisfies it;
// tests inject fakes.
type Searcher interface {
	Search(ctx context.Context, query string, k int) []rag.Chunk
}
