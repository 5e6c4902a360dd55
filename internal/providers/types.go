// Package providers implements the AI clients the resolution engine tries:
// a stateful assistant-thread client and a single-shot chat completion
// client, both speaking the OpenAI-compatible HTTP surface directly.
package providers

import "context"

// Completer is a single-shot completion provider (resolution strategy 2).
type Completer interface {
	// Complete sends one prompt and returns the raw text answer.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name returns the provider identifier (e.g. "openai").
	Name() string
}

// CompletionRequest is the input for a Complete call.
type CompletionRequest struct {
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// Assistant is a stateful per-conversation completion provider
// (resolution strategy 1). Threads persist remotely; the core stores the
// thread handle in the session data bag.
type Assistant interface {
	// EnsureThread returns a usable thread id, creating one when existing
	// is empty or no longer valid.
	EnsureThread(ctx context.Context, existing string) (string, error)

	// Ask submits a message with instructions to the thread, polls the run
	// to completion, and returns the assistant's reply text. Exceeding the
	// configured attempt cap is returned as an error.
	Ask(ctx context.Context, threadID, instructions, message string) (string, error)
}
