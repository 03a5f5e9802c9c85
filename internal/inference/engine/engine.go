// Package engine defines the chat-completion surface the narrative generator
// talks to.
package engine

import (
	"context"
	"errors"
)

type Message struct {
	Role    string
	Content string
}

type GenerateOptions struct {
	Temperature float64
	// StructuredOutput asks the provider to constrain the reply to a JSON
	// object.
	StructuredOutput bool
}

type Engine interface {
	Name() string
	GenerateText(ctx context.Context, messages []Message, opts GenerateOptions) (string, error)
}

// ErrStructuredOutputRejected marks a provider refusal of the structured
// output request shape. Callers may retry once without StructuredOutput.
var ErrStructuredOutputRejected = errors.New("structured output rejected by provider")
