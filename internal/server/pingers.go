package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/supportbot-go/internal/logging"
	"github.com/54b3r/supportbot-go/internal/provider"
)

// LLMPinger probes the chat backend. It satisfies the Pinger interface and
// is used by GET /api/ready.
type LLMPinger struct {
	// check is the zero-cost listing probe. Nil for backends without one.
	check provider.HealthChecker
	// model is probed with a one-word generate call when check is nil.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger. check may be nil, in which case the
// probe falls back to a generate call on m.
func NewLLMPinger(m model.ToolCallingChatModel, check provider.HealthChecker, name string) *LLMPinger {
	return &LLMPinger{check: check, model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the chat backend. The listing probe is used when available;
// otherwise a single Generate call is made, which consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.check != nil {
		if err := p.check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return errors.New("no chat model configured")
	}

	logging.FromContext(ctx).Debug("pinger: generate-based health check", "backend", p.name)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return errors.New("generate returned nil response")
	}
	return nil
}

// IndexSizer reports how many chunks an index holds. [*rag.Index] satisfies it.
type IndexSizer interface {
	Len() int
}

// IndexPinger reports ready once the embedding index holds at least one
// chunk, i.e. the startup document set was ingested.
type IndexPinger struct {
	// index is the live embedding index.
	index IndexSizer
}

// NewIndexPinger constructs an IndexPinger for index.
func NewIndexPinger(index IndexSizer) *IndexPinger {
	return &IndexPinger{index: index}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping returns an error while the index is empty.
func (p *IndexPinger) Ping(_ context.Context) error {
	if p.index.Len() == 0 {
		return errors.New("no documents indexed")
	}
	return nil
}
