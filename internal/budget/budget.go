// Package budget estimates prompt size and trims replayed thread history so
// the assembled prompt fits the model's context window. Chat backends use
// different tokenizers, so estimation uses a character heuristic:
// 1 token ≈ 4 characters.
package budget

import (
	"github.com/54b3r/supportbot-go/internal/conversation"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perMessageOverhead approximates the role/framing tokens most chat APIs
	// add to every message.
	perMessageOverhead = 4

	// DefaultMaxContextTokens is the default input budget in tokens. It fits
	// 8k-context models with room left for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token count of msgs, summing the
// per-message overhead, the role name and the content.
func EstimateMessages(msgs []conversation.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(m.Kind().String())
		total += Estimate(m.Text())
	}
	return total
}

// TrimHistory drops the oldest entries of history until fixed + history fits
// within maxTokens. fixed holds messages that are never dropped (the system
// prompt and the current user turn).
//
// If fixed alone exceeds the budget the result is empty; callers decide
// whether that is worth a warning.
func TrimHistory(fixed, history []conversation.Message, maxTokens int) []conversation.Message {
	if len(history) == 0 {
		return history
	}

	fixedTokens := EstimateMessages(fixed)
	for len(history) > 0 {
		if fixedTokens+EstimateMessages(history) <= maxTokens {
			break
		}
		history = history[1:]
	}
	return history
}
