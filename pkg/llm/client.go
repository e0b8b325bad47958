// Package llm is the Go-side abstraction over the language model backing
// reviewer, moderator, and meta-planner agents. It exposes a single-shot,
// structured-output call — no streaming, no tool-calling — since every
// caller in this system wants one JSON object back per invocation.
package llm

import "context"

// Conversation message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one turn in the prompt sent to the model.
type ConversationMessage struct {
	Role    string
	Content string
}

// Request describes a single structured-output call: a system prompt, the
// conversation so far, and the JSON schema the response must conform to.
type Request struct {
	SystemPrompt string
	Messages     []ConversationMessage
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default
	// Model overrides the client's configured default model for this call,
	// honoring a participant's RoleSpec.ModelID.
	Model string
}

// Response carries token accounting alongside the raw JSON text; callers
// unmarshal Content themselves so a malformed response can be inspected and
// retried rather than failing inside the client.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client is the Go-side interface every agent (reviewer, moderator,
// meta-planner) calls through. Implementations: OpenAIClient for production
// use, Stub for tests.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Model reports the client's default model name, used for logging and
	// for token-usage attribution when a request does not override it.
	Model() string
}
