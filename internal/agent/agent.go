// Package agent answers support questions. A planner model decides whether to
// consult the documentation through the retrieve tool, then the chat model
// streams the final answer, which is relayed to the caller as growing
// full-text snapshots.
//
// Each request runs the state machine
//
//	Planning -> Retrieving -> (Planning ...) -> Generating -> Streaming -> Done
//
// with Failed reachable from every state. Retrieval round-trips are capped by
// Config.MaxToolRounds.
package agent

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/supportbot-go/internal/budget"
	"github.com/54b3r/supportbot-go/internal/conversation"
	"github.com/54b3r/supportbot-go/internal/logging"
	"github.com/54b3r/supportbot-go/internal/prompt"
	"github.com/54b3r/supportbot-go/internal/store"
	"github.com/54b3r/supportbot-go/internal/tools"
)

const (
	// DefaultMaxToolRounds allows one retrieval before the answer is forced.
	DefaultMaxToolRounds = 1

	// DefaultHistoryDepth is the number of prior exchanges replayed.
	DefaultHistoryDepth = 10

	// finishStop is the finish reason that ends a stream.
	finishStop = "stop"
)

// Generator runs the answer state machine. It is safe for concurrent use;
// all per-request state lives in the call.
type Generator struct {
	// chat streams the final answer.
	chat model.ToolCallingChatModel

	// planner is chat with the retrieve tool bound; nil when no retriever
	// is configured.
	planner model.ToolCallingChatModel

	retriever Retriever
	threads   store.ThreadStore

	systemPrompt  string
	guidelines    string
	plannerPrompt string

	maxToolRounds    int
	historyDepth     int
	maxContextTokens int
}

// New constructs a Generator and binds the retrieve tool to the planner.
func New(ctx context.Context, cfg *Config) (*Generator, error) {
	if cfg == nil || cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}

	g := &Generator{
		chat:             cfg.ChatModel,
		retriever:        cfg.Retriever,
		threads:          cfg.Threads,
		systemPrompt:     cmp.Or(cfg.SystemPrompt, prompt.Persona(cfg.ProductName)),
		guidelines:       cmp.Or(cfg.Guidelines, prompt.Guidelines(cfg.ProductName)),
		plannerPrompt:    cmp.Or(cfg.PlannerPrompt, prompt.Planner(cfg.ProductName)),
		maxToolRounds:    positiveOr(cfg.MaxToolRounds, DefaultMaxToolRounds),
		historyDepth:     positiveOr(cfg.HistoryDepth, DefaultHistoryDepth),
		maxContextTokens: positiveOr(cfg.MaxContextTokens, budget.DefaultMaxContextTokens),
	}

	if cfg.Retriever != nil {
		info, err := cfg.Retriever.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("agent: retrieve tool info: %w", err)
		}
		planner, err := cfg.ChatModel.WithTools([]*schema.ToolInfo{info})
		if err != nil {
			return nil, fmt.Errorf("agent: bind retrieve tool: %w", err)
		}
		g.planner = planner
	}
	return g, nil
}

// run is the per-request state of one Answer call.
type run struct {
	log   *slog.Logger
	res   *Result
	start time.Time
}

// enter records a transition.
func (r *run) enter(s State) {
	from := r.res.State()
	r.res.States = append(r.res.States, s)
	r.log.Debug("agent: state transition", "from", from.String(), "to", s.String())
}

// fail moves the run to Failed and returns the result with err.
func (r *run) fail(err error) (*Result, error) {
	r.enter(StateFailed)
	r.res.Duration = time.Since(r.start)
	r.log.Warn("agent: answer failed",
		slog.String("partial", truncate(r.res.Text, 80)),
		slog.Any("error", err),
	)
	return r.res, err
}

// Answer runs the state machine for req, calling emit with every growing
// snapshot of the answer. On failure the returned Result carries the partial
// text already emitted together with the error.
func (g *Generator) Answer(ctx context.Context, req *Request, emit Emitter) (*Result, error) {
	r := &run{
		log:   logging.FromContext(ctx).With(slog.String("thread_id", req.ThreadID)),
		res:   &Result{ThreadID: req.ThreadID},
		start: time.Now(),
	}

	prior := g.loadHistory(ctx, r, req.ThreadID)
	turn := []conversation.Message{conversation.Human{Content: req.Message}}

	turn, err := g.plan(ctx, r, prior, turn)
	if err != nil {
		return r.fail(err)
	}

	r.enter(StateGenerating)
	msgs := g.generationPrompt(r, prior, turn)
	sr, err := g.chat.Stream(ctx, conversation.ToSchemaAll(msgs))
	if err != nil {
		return r.fail(fmt.Errorf("agent: open generation stream: %w", err))
	}

	r.enter(StateStreaming)
	if err := relay(ctx, sr, r.res, emit); err != nil {
		return r.fail(err)
	}

	r.enter(StateDone)
	r.res.Duration = time.Since(r.start)
	g.saveTurn(ctx, r, req)
	r.log.Info("agent: answer complete",
		slog.Int("chars", len(r.res.Text)),
		slog.Int("tool_rounds", r.res.ToolRounds),
		slog.Int("sources", len(r.res.Sources)),
		slog.Duration("duration", r.res.Duration),
	)
	return r.res, nil
}

// plan alternates Planning and Retrieving until the planner stops asking for
// tools or the round cap is reached. It returns turn extended with the tool
// calls and their results.
func (g *Generator) plan(ctx context.Context, r *run, prior, turn []conversation.Message) ([]conversation.Message, error) {
	if g.planner == nil {
		return turn, nil
	}

	for round := 0; round < g.maxToolRounds; round++ {
		r.enter(StatePlanning)

		in := make([]conversation.Message, 0, 1+len(prior)+len(turn))
		in = append(in, conversation.System{Content: g.plannerPrompt})
		in = append(in, prior...)
		in = append(in, turn...)

		resp, err := g.planner.Generate(ctx, conversation.ToSchemaAll(in))
		if err != nil {
			return turn, fmt.Errorf("agent: planning: %w", err)
		}
		msg, err := conversation.FromSchema(resp)
		if err != nil {
			return turn, fmt.Errorf("agent: planning: %w", err)
		}
		call, ok := msg.(conversation.Assistant)
		if !ok || !call.PendingTool() {
			r.log.Debug("agent: planner requested no tools", "round", round)
			return turn, nil
		}

		r.enter(StateRetrieving)
		for i := range call.ToolCalls {
			if call.ToolCalls[i].ID == "" {
				call.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", round, i)
			}
		}
		turn = append(turn, call)
		for _, c := range call.ToolCalls {
			turn = append(turn, g.runTool(ctx, r, c))
		}
		r.res.ToolRounds++
	}

	r.log.Debug("agent: tool round cap reached, forcing answer", "max_tool_rounds", g.maxToolRounds)
	return turn, nil
}

// runTool executes one tool call. Failures become error results rather than
// aborting the request.
func (g *Generator) runTool(ctx context.Context, r *run, c conversation.ToolCall) conversation.ToolResult {
	res := conversation.ToolResult{CallID: c.ID, Name: c.Name}

	if c.Name != tools.RetrieveName {
		r.log.Warn("agent: planner requested unknown tool", "tool", c.Name)
		res.Content = fmt.Sprintf("unknown tool %q", c.Name)
		res.IsError = true
		return res
	}

	query, err := tools.ParseRetrieveArgs(c.Arguments)
	if err != nil {
		r.log.Warn("agent: invalid retrieve arguments", "arguments", c.Arguments, "error", err)
		res.Content = err.Error()
		res.IsError = true
		return res
	}

	text, chunks := g.retriever.Retrieve(ctx, query)
	r.res.Sources = append(r.res.Sources, chunks...)
	res.Content = text
	return res
}

// generationPrompt assembles the final prompt: the system message with
// retrieved context, replayed history trimmed to the token budget, and the
// current turn.
func (g *Generator) generationPrompt(r *run, prior, turn []conversation.Message) []conversation.Message {
	retrieved := prompt.ContextFrom(turn)

	fixed := []conversation.Message{
		conversation.System{Content: prompt.SystemContent(g.systemPrompt, retrieved, g.guidelines)},
		turn[0],
	}
	history := prompt.Replayable(prior)
	before := len(history)
	history = budget.TrimHistory(fixed, history, g.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		r.log.Warn("budget: dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", g.maxContextTokens),
		)
	}

	return prompt.Assemble(g.systemPrompt, retrieved, g.guidelines, slices.Concat(history, turn))
}

// relay drains sr into res.Text, emitting a snapshot after every non-empty
// delta. It stops at EOF or a "stop" finish reason, and returns immediately
// when ctx is done, a receive fails or emit fails.
func relay(ctx context.Context, sr *schema.StreamReader[*schema.Message], res *Result, emit Emitter) error {
	defer sr.Close()

	var acc strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("agent: stream cancelled: %w", err)
		}
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("agent: stream receive: %w", err)
		}
		if chunk == nil {
			continue
		}
		if chunk.Content != "" {
			acc.WriteString(chunk.Content)
			res.Text = acc.String()
			if err := emit(res.Text); err != nil {
				return fmt.Errorf("%w: %w", ErrEmit, err)
			}
		}
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.FinishReason == finishStop {
			return nil
		}
	}
}

// loadHistory returns prior turns of threadID. Failures are logged and
// treated as an empty history.
func (g *Generator) loadHistory(ctx context.Context, r *run, threadID string) []conversation.Message {
	if g.threads == nil || threadID == "" {
		return nil
	}
	prior, err := g.threads.Recent(ctx, threadID, g.historyDepth*2)
	if err != nil {
		r.log.Warn("history: failed to load prior messages", slog.Any("error", err))
		return nil
	}
	return prior
}

// saveTurn records the question and the final answer. Failures are logged.
func (g *Generator) saveTurn(ctx context.Context, r *run, req *Request) {
	if g.threads == nil || req.ThreadID == "" {
		return
	}
	if err := g.threads.Append(ctx, req.ThreadID, conversation.Human{Content: req.Message}); err != nil {
		r.log.Warn("history: failed to persist user message", slog.Any("error", err))
		return
	}
	if err := g.threads.Append(ctx, req.ThreadID, conversation.Assistant{Content: r.res.Text}); err != nil {
		r.log.Warn("history: failed to persist assistant message", slog.Any("error", err))
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// truncate shortens s to at most n bytes for logging, backing off to a
// rune boundary so the result stays valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
