// Package generation defines the contract between the memory engine and the
// downstream generation router. The router itself runs as a separate service;
// this package only fixes the shape of what it receives so the two sides can
// evolve against a shared type.
package generation

import "context"

// Request carries everything a generation call needs: the memory context block
// is injected verbatim ahead of the user's message.
type Request struct {
	UserID         string `json:"user_id"`
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id"`

	// MemoryContext is the formatted block produced by the memory engine.
	// Empty when no relevant history exists.
	MemoryContext string `json:"memory_context,omitempty"`

	// Message is the user's new message, untouched.
	Message string `json:"message"`
}

// Response is the generated assistant turn.
type Response struct {
	Content     string `json:"content"`
	Model       string `json:"model"`
	TokensUsed  int    `json:"tokens_used"`
	FinishedWhy string `json:"finished_why,omitempty"`
}

// Router produces an assistant response for a user message plus its memory
// context. Implementations live outside this repository.
type Router interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
