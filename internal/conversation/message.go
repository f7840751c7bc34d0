// Package conversation defines the closed set of message kinds that make up a
// chat thread and converts them to and from eino [schema.Message] values.
//
// A thread is an ordered []Message. The variant is sealed: only this package
// can add a kind, and every switch over it ends in a panic on an unknown kind
// so that a new kind shows up at the first call site that forgets it.
package conversation

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Kind identifies which variant a Message is.
type Kind int

const (
	// KindSystem is an instruction message authored by the application.
	KindSystem Kind = iota + 1
	// KindHuman is a message typed by the end user.
	KindHuman
	// KindAssistant is a model response, either a final answer or a
	// pending tool invocation.
	KindAssistant
	// KindToolResult is the output of a tool the model asked for.
	KindToolResult
)

// String returns the lower-case role name for k.
func (k Kind) String() string {
	switch k {
	case KindSystem:
		return "system"
	case KindHuman:
		return "human"
	case KindAssistant:
		return "assistant"
	case KindToolResult:
		return "tool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Message is one entry of a thread.
type Message interface {
	// Kind reports the variant.
	Kind() Kind
	// Text returns the message body.
	Text() string

	sealed()
}

// ToolCall is a structured request from the model to run a named tool.
type ToolCall struct {
	// ID correlates the call with its ToolResult.
	ID string
	// Name is the tool name, e.g. "retrieve".
	Name string
	// Arguments is the raw JSON argument object.
	Arguments string
}

// System is an application instruction.
type System struct {
	Content string
}

// Human is an end-user message.
type Human struct {
	Content string
}

// Assistant is a model turn. A non-empty ToolCalls marks it as a pending
// tool invocation rather than a final answer.
type Assistant struct {
	Content   string
	ToolCalls []ToolCall
}

// ToolResult carries the output of one tool call back to the model.
type ToolResult struct {
	// CallID is the ToolCall.ID this result answers.
	CallID string
	// Name is the tool that produced the result.
	Name    string
	Content string
	// IsError marks a result describing a failed call. Error results are
	// shown to the planner but never used as answer context.
	IsError bool
}

func (System) Kind() Kind     { return KindSystem }
func (Human) Kind() Kind      { return KindHuman }
func (Assistant) Kind() Kind  { return KindAssistant }
func (ToolResult) Kind() Kind { return KindToolResult }

func (m System) Text() string     { return m.Content }
func (m Human) Text() string      { return m.Content }
func (m Assistant) Text() string  { return m.Content }
func (m ToolResult) Text() string { return m.Content }

func (System) sealed()     {}
func (Human) sealed()      {}
func (Assistant) sealed()  {}
func (ToolResult) sealed() {}

// PendingTool reports whether m is a tool invocation rather than an answer.
func (m Assistant) PendingTool() bool { return len(m.ToolCalls) > 0 }

// unknown panics for a Message implementation outside the closed set.
func unknown(m Message) {
	panic(fmt.Sprintf("conversation: unknown message kind %T", m))
}

// ToSchema converts m into the eino message representation.
func ToSchema(m Message) *schema.Message {
	switch v := m.(type) {
	case System:
		return schema.SystemMessage(v.Content)
	case Human:
		return schema.UserMessage(v.Content)
	case Assistant:
		var calls []schema.ToolCall
		for _, c := range v.ToolCalls {
			calls = append(calls, schema.ToolCall{
				ID:   c.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      c.Name,
					Arguments: c.Arguments,
				},
			})
		}
		return schema.AssistantMessage(v.Content, calls)
	case ToolResult:
		return &schema.Message{
			Role:       schema.Tool,
			Content:    v.Content,
			ToolCallID: v.CallID,
			ToolName:   v.Name,
		}
	default:
		unknown(m)
		return nil
	}
}

// ToSchemaAll converts a thread into eino messages, preserving order.
func ToSchemaAll(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToSchema(m))
	}
	return out
}

// FromSchema converts an eino message into the closed variant.
// It returns an error for roles outside system/user/assistant/tool.
func FromSchema(m *schema.Message) (Message, error) {
	if m == nil {
		return nil, fmt.Errorf("conversation: nil message")
	}
	switch m.Role {
	case schema.System:
		return System{Content: m.Content}, nil
	case schema.User:
		return Human{Content: m.Content}, nil
	case schema.Assistant:
		a := Assistant{Content: m.Content}
		for _, c := range m.ToolCalls {
			a.ToolCalls = append(a.ToolCalls, ToolCall{
				ID:        c.ID,
				Name:      c.Function.Name,
				Arguments: c.Function.Arguments,
			})
		}
		return a, nil
	case schema.Tool:
		return ToolResult{CallID: m.ToolCallID, Name: m.ToolName, Content: m.Content}, nil
	default:
		return nil, fmt.Errorf("conversation: unsupported role %q", m.Role)
	}
}
