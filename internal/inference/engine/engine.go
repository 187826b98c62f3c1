package engine

import (
	"context"
	"encoding/json"
)

type Message struct {
	Role    string
	Content string
}

type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Completion is a chat model response. Content is nil when the provider
// returned no primary text field; Raw always holds the undecoded body.
type Completion struct {
	Content *string
	Raw     json.RawMessage
}

// Text returns the primary content, falling back to the raw response body
// when the provider sent no content field. It never fails.
func (c Completion) Text() string {
	if c.Content != nil {
		return *c.Content
	}
	if len(c.Raw) == 0 {
		return ""
	}
	return string(c.Raw)
}

// TextCompletion wraps plain text as a Completion.
func TextCompletion(s string) Completion {
	return Completion{Content: &s}
}

type Engine interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
	GenerateText(ctx context.Context, model string, messages []Message, opts GenerateOptions) (Completion, error)
	StreamText(ctx context.Context, model string, messages []Message, opts GenerateOptions, onDelta func(delta string)) (full string, err error)
}
