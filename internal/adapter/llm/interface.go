// Package llm is the boundary to the text-generation engine. The engine
// consumes a prompt derived from a conversation and produces text, either
// whole or as a sequence of fragments.
package llm

import (
	"context"

	"github.com/xiaot623/gogo/chatd/internal/protocol"
)

// Options are the sampling knobs forwarded to the engine.
type Options struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Seed        *int64
	Stop        []string
}

// Generation is the outcome of one engine call.
type Generation struct {
	Model            string
	Text             string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Usage returns the token usage of the generation.
func (g *Generation) Usage() protocol.Usage {
	return protocol.NewUsage(g.PromptTokens, g.CompletionTokens)
}

// FragmentCallback is called for each generated fragment, in order.
// Returning an error stops generation.
type FragmentCallback func(fragment string) error

// Engine defines the text-generation capability.
type Engine interface {
	// Generate produces the complete reply.
	Generate(ctx context.Context, prompt *Prompt) (*Generation, error)

	// GenerateStream produces the reply incrementally. Cancellation is
	// observed between fragments. The returned Generation holds the full
	// text.
	GenerateStream(ctx context.Context, prompt *Prompt, callback FragmentCallback) (*Generation, error)

	// ListModels retrieves the list of available models.
	ListModels(ctx context.Context) ([]protocol.Model, error)
}

// Ensure Client implements Engine interface.
var _ Engine = (*Client)(nil)
