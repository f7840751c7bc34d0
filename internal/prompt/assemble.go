package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/54b3r/supportbot-go/internal/conversation"
)

// contextHeader introduces the retrieved documentation inside the system
// message.
const contextHeader = "\n\nContext:\n"

// SystemContent concatenates the persona, the Context section and the
// guidelines into the content of the single leading system message.
func SystemContent(systemPrompt, retrievedContext, guidelines string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString(contextHeader)
	b.WriteString(retrievedContext)
	if guidelines != "" {
		b.WriteString("\n\n")
		b.WriteString(guidelines)
	}
	return b.String()
}

// Assemble returns the generation prompt: one system message built by
// [SystemContent], followed by the replayable part of history.
//
// Human and System turns are replayed. Assistant turns are replayed only when
// they are final answers; pending tool invocations and raw tool results are
// dropped because their substance already sits in the Context section.
func Assemble(systemPrompt, retrievedContext, guidelines string, history []conversation.Message) []conversation.Message {
	out := make([]conversation.Message, 0, len(history)+1)
	out = append(out, conversation.System{Content: SystemContent(systemPrompt, retrievedContext, guidelines)})
	return append(out, Replayable(history)...)
}

// Replayable filters a thread down to the turns that are sent back to the
// model verbatim.
func Replayable(history []conversation.Message) []conversation.Message {
	out := make([]conversation.Message, 0, len(history))
	for _, m := range history {
		switch v := m.(type) {
		case conversation.System, conversation.Human:
			out = append(out, v)
		case conversation.Assistant:
			if !v.PendingTool() {
				out = append(out, v)
			}
		case conversation.ToolResult:
			// Summarized into the Context section.
		default:
			panic(fmt.Sprintf("prompt: unhandled message kind %T", m))
		}
	}
	return out
}

// ContextFrom joins the contents of the successful tool results in thread,
// most recent first, into the text placed in the Context section.
func ContextFrom(thread []conversation.Message) string {
	var parts []string
	for _, m := range slices.Backward(thread) {
		if r, ok := m.(conversation.ToolResult); ok && !r.IsError && r.Content != "" {
			parts = append(parts, r.Content)
		}
	}
	return strings.Join(parts, "\n")
}
