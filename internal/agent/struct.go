package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/supportbot-go/internal/rag"
	"github.com/54b3r/supportbot-go/internal/store"
)

// ErrEmit wraps failures returned by an [Emitter]. The generator stops at the
// first such failure and never retries the write.
var ErrEmit = errors.New("agent: emit failed")

// Emitter receives the full answer text generated so far, once per non-empty
// delta. Each snapshot extends the previous one. A non-nil error ends the
// stream.
type Emitter func(snapshot string) error

// Retriever is the retrieval capability exposed to the planner.
// [*tools.Retrieve] satisfies it.
type Retriever interface {
	// Info returns the tool schema bound to the planner model.
	Info(ctx context.Context) (*schema.ToolInfo, error)
	// Retrieve returns serialized context and its source chunks.
	Retrieve(ctx context.Context, query string) (string, []rag.Chunk)
}

// Config holds the dependencies of a Generator.
type Config struct {
	// ChatModel is the hosted chat model used for planning and generation.
	ChatModel model.ToolCallingChatModel

	// Retriever is bound to the planner as the retrieve tool. When nil the
	// planning step is skipped and answers are generated without context.
	Retriever Retriever

	// Threads replays and records per-thread history. Optional.
	Threads store.ThreadStore

	// ProductName personalises the default prompts.
	ProductName string

	// SystemPrompt overrides the default persona.
	SystemPrompt string

	// Guidelines overrides the default response guidelines.
	Guidelines string

	// PlannerPrompt overrides the default planner instructions.
	PlannerPrompt string

	// MaxToolRounds caps planning/retrieval round-trips per request before
	// generation is forced. Defaults to 1.
	MaxToolRounds int

	// HistoryDepth is the number of prior exchanges (user+assistant pairs)
	// replayed from Threads. Defaults to 10.
	HistoryDepth int

	// MaxContextTokens is the estimated input budget; replayed history is
	// trimmed oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Request is one user question.
type Request struct {
	// ThreadID selects the history to replay and extend. Empty means a
	// stateless request.
	ThreadID string

	// Message is the user's question.
	Message string
}

// Result describes a finished or failed answer.
type Result struct {
	// ThreadID echoes the request thread.
	ThreadID string

	// Text is the answer generated so far; on failure it is the partial
	// text that was already emitted.
	Text string

	// Sources are the chunks retrieved while planning.
	Sources []rag.Chunk

	// ToolRounds counts completed retrieval round-trips.
	ToolRounds int

	// States is the sequence of states the run passed through.
	States []State

	// Duration is the wall time of the run.
	Duration time.Duration
}

// State returns the terminal (or current) state of the run.
func (r *Result) State() State {
	if len(r.States) == 0 {
		return 0
	}
	return r.States[len(r.States)-1]
}

// State is a step of the answer state machine.
type State int

const (
	// StatePlanning asks the model whether retrieval is needed.
	StatePlanning State = iota + 1
	// StateRetrieving executes requested tool calls.
	StateRetrieving
	// StateGenerating assembles the prompt and opens the model stream.
	StateGenerating
	// StateStreaming relays deltas to the emitter.
	StateStreaming
	// StateDone is the successful terminal state.
	StateDone
	// StateFailed is the error terminal state.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
