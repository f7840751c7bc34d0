package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/supportbot-go/internal/logging"
	"github.com/54b3r/supportbot-go/internal/rag"
)

const (
	// RetrieveName is the tool name the model calls.
	RetrieveName = "retrieve"

	// DefaultRetrieveTopK is the number of chunks one retrieval returns.
	DefaultRetrieveTopK = 2

	// contentPrefix labels every chunk in the serialized result.
	contentPrefix = "Content: "
)

// RetrieveConfig configures a [Retrieve] tool.
type RetrieveConfig struct {
	// TopK is the number of chunks per call. Defaults to DefaultRetrieveTopK.
	TopK int

	// ProductName is used in the default description.
	ProductName string

	// Description overrides the LLM-facing description.
	Description string
}

var _ SupportTool = (*Retrieve)(nil)

// Retrieve looks up documentation chunks relevant to a query.
type Retrieve struct {
	searcher    Searcher
	topK        int
	description string
}

// retrieveInput is the JSON argument object the model sends.
type retrieveInput struct {
	Query string `json:"query"`
}

// NewRetrieve constructs the retrieval tool over searcher. cfg may be nil.
func NewRetrieve(searcher Searcher, cfg *RetrieveConfig) *Retrieve {
	if cfg == nil {
		cfg = &RetrieveConfig{}
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultRetrieveTopK
	}
	desc := cfg.Description
	if desc == "" {
		product := cfg.ProductName
		if product == "" {
			product = "the product"
		}
		desc = fmt.Sprintf("Retrieve information about %s related to a query.", product)
	}
	return &Retrieve{searcher: searcher, topK: topK, description: desc}
}

// Name returns the tool name registered with the model.
func (r *Retrieve) Name() string { return RetrieveName }

// Description returns the LLM-facing description.
func (r *Retrieve) Description() string { return r.description }

// Info returns the Eino tool metadata with a single required query parameter.
func (r *Retrieve) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: r.Name(),
		Desc: r.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "Search query describing the information needed to answer the user.",
				Required: true,
			},
		}),
	}, nil
}

// InvokableRun decodes {"query": "..."} and returns the serialized chunks.
func (r *Retrieve) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	query, err := ParseRetrieveArgs(argumentsInJSON)
	if err != nil {
		return "", err
	}
	text, _ := r.Retrieve(ctx, query)
	return text, nil
}

// Retrieve searches for query and returns the serialized text together with
// the chunks it was built from. A failed search yields ("", nil); callers
// answer without context in that case.
func (r *Retrieve) Retrieve(ctx context.Context, query string) (string, []rag.Chunk) {
	chunks := r.searcher.Search(ctx, query, r.topK)
	logging.FromContext(ctx).Debug("retrieve: search complete", "query", query, "results", len(chunks))
	if len(chunks) == 0 {
		return "", nil
	}
	return Serialize(chunks), chunks
}

// Serialize renders chunks as "Content: <text>" lines joined by newlines.
func Serialize(chunks []rag.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = contentPrefix + c.Content
	}
	return strings.Join(parts, "\n")
}

// ParseRetrieveArgs extracts the query from a retrieve tool call's JSON
// arguments. A missing or blank query is an error.
func ParseRetrieveArgs(argumentsInJSON string) (string, error) {
	var in retrieveInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &in); err != nil {
		return "", fmt.Errorf("retrieve: invalid input: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("retrieve: query is required")
	}
	return in.Query, nil
}
