// Package llm defines the Provider interface for chat-completion backends.
//
// scribe only needs plain text completions: a system prompt, a short message
// history and a bounded reply. Tool calling and streaming are not part of the
// interface.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message roles accepted by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text of the turn.
	Content string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is sent ahead of Messages as a system turn. Optional.
	SystemPrompt string

	// Messages is the ordered conversation history.
	Messages []Message

	// Temperature controls randomness. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any chat-completion backend.
type Provider interface {
	// Complete sends req and waits for the full reply. It returns promptly
	// with ctx.Err() once ctx is done.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
