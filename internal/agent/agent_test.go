package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/supportbot-go/internal/conversation"
	"github.com/54b3r/supportbot-go/internal/rag"
	"github.com/54b3r/supportbot-go/internal/store"
	"github.com/54b3r/supportbot-go/internal/tools"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeChatModel is a test double for model.ToolCallingChatModel. Generate
// serves the planner: it returns plans in order and repeats the last one.
// Stream serves generation from a fixed chunk list or a custom factory.
type fakeChatModel struct {
	mu sync.Mutex

	plans   []*schema.Message
	planErr error

	chunks    []*schema.Message
	streamFn  func() *schema.StreamReader[*schema.Message]
	streamErr error

	boundTools    []*schema.ToolInfo
	generateCalls int
	streamCalls   int
	planInputs    [][]*schema.Message
	streamInput   []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.planInputs = append(f.planInputs, in)
	if f.planErr != nil {
		return nil, f.planErr
	}
	if len(f.plans) == 0 {
		return schema.AssistantMessage("no tools needed", nil), nil
	}
	i := min(f.generateCalls-1, len(f.plans)-1)
	return f.plans[i], nil
}

func (f *fakeChatModel) Stream(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls++
	f.streamInput = in
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	if f.streamFn != nil {
		return f.streamFn(), nil
	}
	return schema.StreamReaderFromArray(f.chunks), nil
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boundTools = tools
	return f, nil
}

// keywordEmbedder counts vocabulary words, giving deterministic similarity.
type keywordEmbedder struct{ vocab []string }

func (e keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(e.vocab))
		lower := strings.ToLower(t)
		for j, w := range e.vocab {
			v[j] = float32(strings.Count(lower, w))
		}
		out[i] = v
	}
	return out, nil
}

// retrieveCall builds a planner response requesting one retrieval.
func retrieveCall(id, query string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: tools.RetrieveName, Arguments: `{"query":"` + query + `"}`},
	}})
}

func deltas(parts ...string) []*schema.Message {
	out := make([]*schema.Message, len(parts))
	for i, p := range parts {
		out[i] = schema.AssistantMessage(p, nil)
	}
	return out
}

func stopChunk(content string) *schema.Message {
	return &schema.Message{
		Role:         schema.Assistant,
		Content:      content,
		ResponseMeta: &schema.ResponseMeta{FinishReason: "stop"},
	}
}

// newIndexRetriever builds a retrieve tool over an in-memory index holding
// contents.
func newIndexRetriever(t *testing.T, contents ...string) *tools.Retrieve {
	t.Helper()
	ctx := context.Background()
	idx := rag.NewIndex(keywordEmbedder{vocab: []string{"product", "feature", "billing"}}, nil)
	if err := idx.Init(ctx); err != nil {
		t.Fatalf("index init: %v", err)
	}
	chunks := make([]rag.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = rag.Chunk{Content: c, Metadata: map[string]any{"source": "test"}}
	}
	if !idx.Add(ctx, chunks) {
		t.Fatal("index add failed")
	}
	return tools.NewRetrieve(idx, nil)
}

// recorder collects emitted snapshots.
type recorder struct {
	snapshots []string
}

func (r *recorder) emit(s string) error {
	r.snapshots = append(r.snapshots, s)
	return nil
}

func newGenerator(t *testing.T, cfg *Config) *Generator {
	t.Helper()
	g, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func statesEqual(got []State, want ...State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNew_RequiresChatModel(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), &Config{}); err == nil {
		t.Fatal("expected error for nil ChatModel")
	}
}

func TestNew_BindsRetrieveTool(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{}
	newGenerator(t, &Config{ChatModel: m, Retriever: newIndexRetriever(t, "x")})
	if len(m.boundTools) != 1 || m.boundTools[0].Name != tools.RetrieveName {
		t.Fatalf("bound tools = %+v, want [retrieve]", m.boundTools)
	}
}

// ---------------------------------------------------------------------------
// Streaming
// ---------------------------------------------------------------------------

// TestAnswer_SnapshotsGrowMonotonically verifies every snapshot is a prefix of
// the next and the last one equals the full answer.
func TestAnswer_SnapshotsGrowMonotonically(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{chunks: deltas("Yes", ", it", "", " does", ".")}
	g := newGenerator(t, &Config{ChatModel: m, Retriever: newIndexRetriever(t, "x")})

	var rec recorder
	res, err := g.Answer(context.Background(), &Request{Message: "Does it?"}, rec.emit)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	want := []string{"Yes", "Yes, it", "Yes, it does", "Yes, it does."}
	if len(rec.snapshots) != len(want) {
		t.Fatalf("snapshots = %q, want %q", rec.snapshots, want)
	}
	for i := range want {
		if rec.snapshots[i] != want[i] {
			t.Errorf("snapshot %d = %q, want %q", i, rec.snapshots[i], want[i])
		}
		if i > 0 && !strings.HasPrefix(rec.snapshots[i], rec.snapshots[i-1]) {
			t.Errorf("snapshot %d does not extend snapshot %d", i, i-1)
		}
	}
	if res.Text != rec.snapshots[len(rec.snapshots)-1] {
		t.Errorf("result text %q != final snapshot", res.Text)
	}
	if !statesEqual(res.States, StatePlanning, StateGenerating, StateStreaming, StateDone) {
		t.Errorf("states = %v", res.States)
	}
	if res.State() != StateDone {
		t.Errorf("State() = %s, want done", res.State())
	}
}

func TestAnswer_StopsAtFinishReason(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{chunks: []*schema.Message{
		schema.AssistantMessage("a", nil),
		stopChunk("b"),
		schema.AssistantMessage("never", nil),
	}}
	g := newGenerator(t, &Config{ChatModel: m})

	var rec recorder
	res, err := g.Answer(context.Background(), &Request{Message: "q"}, rec.emit)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if res.Text != "ab" {
		t.Errorf("text = %q, want %q", res.Text, "ab")
	}
	if len(rec.snapshots) != 2 {
		t.Errorf("emitted %d snapshots, want 2", len(rec.snapshots))
	}
}

func TestAnswer_NoRetrieverSkipsPlanning(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{chunks: deltas("hi")}
	g := newGenerator(t, &Config{ChatModel: m})

	res, err := g.Answer(context.Background(), &Request{Message: "hello"}, (&recorder{}).emit)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if m.generateCalls != 0 {
		t.Errorf("planner called %d times without a retriever", m.generateCalls)
	}
	if !statesEqual(res.States, StateGenerating, StateStreaming, StateDone) {
		t.Errorf("states = %v", res.States)
	}
}

// ---------------------------------------------------------------------------
// Retrieval
// ---------------------------------------------------------------------------

// TestAnswer_EndToEndContext ingests one chunk, asks about it and checks the
// chunk reaches both the result sources and the system prompt's Context.
func TestAnswer_EndToEndContext(t *testing.T) {
	t.Parallel()
	const fact = "Product X supports feature Y."
	m := &fakeChatModel{
		plans:  []*schema.Message{retrieveCall("call_1", "Product X feature Y")},
		chunks: deltas("Yes."),
	}
	g := newGenerator(t, &Config{ChatModel: m, Retriever: newIndexRetriever(t, fact)})

	res, err := g.Answer(context.Background(), &Request{Message: "Does Product X support feature Y?"}, (&recorder{}).emit)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if len(res.Sources) != 1 || res.Sources[0].Content != fact {
		t.Fatalf("sources = %+v, want the ingested chunk", res.Sources)
	}
	if res.ToolRounds != 1 {
		t.Errorf("ToolRounds = %d, want 1", res.ToolRounds)
	}

	sys := m.streamInput[0]
	if sys.Role != schema.System {
		t.Fatalf("first generation message role = %s, want system", sys.Role)
	}
	_, afterContext, ok := strings.Cut(sys.Content, "Context:\n")
	if !ok {
		t.Fatalf("system prompt has no Context section: %q", sys.Content)
	}
	if !strings.Contains(afterContext, fact) {
		t.Errorf("Context section lacks %q: %q", fact, afterContext)
	}
	for _, msg := range m.streamInput[1:] {
		if msg.Role == schema.Tool || len(msg.ToolCalls) > 0 {
			t.Errorf("generation prompt replays tool traffic: %+v", msg)
		}
	}
	if !statesEqual(res.States, StatePlanning, StateRetrieving, StateGenerating, StateStreaming, StateDone) {
		t.Errorf("states = %v", res.States)
	}
}

// TestAnswer_ToolLoopBounded uses a planner that always requests retrieval
// and checks the generator still finishes after the configured cap.
func TestAnswer_ToolLoopBounded(t *testing.T) {
	t.Parallel()

	for _, rounds := range []int{0, 1, 3} {
		m := &fakeChatModel{
			plans:  []*schema.Message{retrieveCall("", "product")},
			chunks: deltas("final"),
		}
		g := newGenerator(t, &Config{
			ChatModel:     m,
			Retriever:     newIndexRetriever(t, "product docs"),
			MaxToolRounds: rounds,
		})

		res, err := g.Answer(context.Background(), &Request{Message: "tell me about the product"}, (&recorder{}).emit)
		if err != nil {
			t.Fatalf("rounds=%d: Answer: %v", rounds, err)
		}
		want := rounds
		if want <= 0 {
			want = DefaultMaxToolRounds
		}
		if m.generateCalls != want || res.ToolRounds != want {
			t.Errorf("rounds=%d: planner calls = %d, tool rounds = %d, want %d", rounds, m.generateCalls, res.ToolRounds, want)
		}
		if res.Text != "final" || res.State() != StateDone {
			t.Errorf("rounds=%d: got %q in state %s", rounds, res.Text, res.State())
		}
	}
}

// TestAnswer_SecondRoundSeesToolResults verifies the planner is shown earlier
// tool calls and their results with generated call ids.
func TestAnswer_SecondRoundSeesToolResults(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{
		plans:  []*schema.Message{retrieveCall("", "billing"), schema.AssistantMessage("enough", nil)},
		chunks: deltas("ok"),
	}
	g := newGenerator(t, &Config{ChatModel: m, Retriever: newIndexRetriever(t, "billing is monthly"), MaxToolRounds: 2})

	if _, err := g.Answer(context.Background(), &Request{Message: "billing?"}, (&recorder{}).emit); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(m.planInputs) != 2 {
		t.Fatalf("planner called %d times, want 2", len(m.planInputs))
	}
	second := m.planInputs[1]
	last := second[len(second)-1]
	if last.Role != schema.Tool || last.ToolCallID != "call_0_0" {
		t.Errorf("second planning input ends with %+v, want tool result for call_0_0", last)
	}
	if !strings.Contains(last.Content, "Content: billing is monthly") {
		t.Errorf("tool result content = %q", last.Content)
	}
}

func TestAnswer_BadToolCallsDegrade(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{
		plans: []*schema.Message{schema.AssistantMessage("", []schema.ToolCall{
			{ID: "a", Function: schema.FunctionCall{Name: "delete_everything", Arguments: `{}`}},
			{ID: "b", Function: schema.FunctionCall{Name: tools.RetrieveName, Arguments: `not json`}},
		})},
		chunks: deltas("answer without context"),
	}
	g := newGenerator(t, &Config{ChatModel: m, Retriever: newIndexRetriever(t, "product")})

	res, err := g.Answer(context.Background(), &Request{Message: "q"}, (&recorder{}).emit)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if len(res.Sources) != 0 {
		t.Errorf("sources = %+v, want none", res.Sources)
	}
	sys := m.streamInput[0].Content
	if strings.Contains(sys, "unknown tool") || strings.Contains(sys, "invalid input") {
		t.Errorf("error tool results leaked into context: %q", sys)
	}
	if res.State() != StateDone {
		t.Errorf("state = %s, want done", res.State())
	}
}

// ---------------------------------------------------------------------------
// Failure paths
// ---------------------------------------------------------------------------

func TestAnswer_PlanningErrorFails(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{planErr: errors.New("401 unauthorized")}
	g := newGenerator(t, &Config{ChatModel: m, Retriever: newIndexRetriever(t, "x")})

	res, err := g.Answer(context.Background(), &Request{Message: "q"}, (&recorder{}).emit)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.State() != StateFailed {
		t.Errorf("state = %s, want failed", res.State())
	}
	if m.streamCalls != 0 {
		t.Errorf("generation started after planning failure")
	}
}

func TestAnswer_StreamOpenErrorFails(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{streamErr: errors.New("503")}
	g := newGenerator(t, &Config{ChatModel: m})

	res, err := g.Answer(context.Background(), &Request{Message: "q"}, (&recorder{}).emit)
	if err == nil || res.State() != StateFailed {
		t.Fatalf("err = %v, state = %s; want failure", err, res.State())
	}
}

func TestAnswer_StreamReceiveErrorKeepsPartial(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{streamFn: func() *schema.StreamReader[*schema.Message] {
		sr, sw := schema.Pipe[*schema.Message](3)
		sw.Send(schema.AssistantMessage("partial", nil), nil)
		sw.Send(nil, errors.New("connection reset"))
		sw.Close()
		return sr
	}}
	g := newGenerator(t, &Config{ChatModel: m})

	var rec recorder
	res, err := g.Answer(context.Background(), &Request{Message: "q"}, rec.emit)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Text != "partial" || len(rec.snapshots) != 1 {
		t.Errorf("partial text %q, snapshots %q", res.Text, rec.snapshots)
	}
	if res.State() != StateFailed {
		t.Errorf("state = %s, want failed", res.State())
	}
}

func TestAnswer_EmitErrorStopsStream(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{chunks: deltas("a", "b", "c", "d")}
	g := newGenerator(t, &Config{ChatModel: m})

	calls := 0
	emit := func(string) error {
		calls++
		if calls == 2 {
			return errors.New("broken pipe")
		}
		return nil
	}
	res, err := g.Answer(context.Background(), &Request{Message: "q"}, emit)
	if !errors.Is(err, ErrEmit) {
		t.Fatalf("err = %v, want ErrEmit", err)
	}
	if calls != 2 {
		t.Errorf("emit called %d times after failure, want 2 total", calls)
	}
	if res.State() != StateFailed {
		t.Errorf("state = %s, want failed", res.State())
	}
}

// TestAnswer_CancelStopsWithinOneStep cancels the request after the second
// snapshot and checks no further snapshot is written.
func TestAnswer_CancelStopsWithinOneStep(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{chunks: deltas("1", "2", "3", "4", "5", "6")}
	g := newGenerator(t, &Config{ChatModel: m})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var rec recorder
	emit := func(s string) error {
		_ = rec.emit(s)
		if len(rec.snapshots) == 2 {
			cancel()
		}
		return nil
	}

	res, err := g.Answer(ctx, &Request{Message: "q"}, emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(rec.snapshots) != 2 {
		t.Errorf("snapshots after cancel = %d, want 2", len(rec.snapshots))
	}
	if res.Text != "12" {
		t.Errorf("partial text = %q, want %q", res.Text, "12")
	}
}

// ---------------------------------------------------------------------------
// History
// ---------------------------------------------------------------------------

func TestAnswer_ReplaysThreadHistory(t *testing.T) {
	t.Parallel()
	threads, err := store.Open()
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = threads.Close() })

	m := &fakeChatModel{chunks: deltas("first answer")}
	g := newGenerator(t, &Config{ChatModel: m, Threads: threads})
	ctx := context.Background()

	if _, err := g.Answer(ctx, &Request{ThreadID: "thread_1", Message: "first question"}, (&recorder{}).emit); err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	if _, err := g.Answer(ctx, &Request{ThreadID: "thread_1", Message: "second question"}, (&recorder{}).emit); err != nil {
		t.Fatalf("second Answer: %v", err)
	}

	var got []string
	for _, msg := range m.streamInput[1:] {
		got = append(got, string(msg.Role)+":"+msg.Content)
	}
	want := []string{"user:first question", "assistant:first answer", "user:second question"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("generation history = %q, want %q", got, want)
	}

	stored, err := threads.Recent(ctx, "thread_1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(stored) != 4 {
		t.Errorf("stored %d turns, want 4", len(stored))
	}
	for _, s := range stored {
		if a, ok := s.(conversation.Assistant); ok && a.PendingTool() {
			t.Error("pending tool call stored in history")
		}
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	names := map[State]string{
		StatePlanning:   "planning",
		StateRetrieving: "retrieving",
		StateGenerating: "generating",
		StateStreaming:  "streaming",
		StateDone:       "done",
		StateFailed:     "failed",
	}
	for s, want := range names {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"héllo", 2, "h..."},
		{"日本語", 4, "日..."},
		{"日本語", 1, "..."},
	}
	for _, tc := range tests {
		got := truncate(tc.in, tc.n)
		if got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tc.in, tc.n)
		}
	}
}
