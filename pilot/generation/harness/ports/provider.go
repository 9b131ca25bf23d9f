package harnessports

import (
	"context"
)

// Message roles understood by chat-completion backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// PromptMessage is one entry of the conversation sent to the backend. An
// assistant message may carry tool calls; a tool message answers exactly
// one of them through ToolCallID.
type PromptMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // assistant only
	ToolCallID string     // tool only
	Name       string     // tool only, the function name
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // re-attached in front of Messages on every call
	Messages []PromptMessage   // ordered, already windowed history
	Tools    []FunctionSpec    // function declarations; empty means no tools
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling, limits and tool preferences.
type Options struct {
	Model        string
	MaxNewTokens int
	Temperature  *float32 // nil defers to the provider config
	TopP         *float32
	Stop         []string
	// ToolChoice: "auto" | "none" | a function name. Empty omits the field.
	ToolChoice string
	// TimeoutMs applies to the provider call only
	TimeoutMs int
}

// Usage captures token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Raw          any    // raw provider payload for debugging
	Usage        *Usage // optional
}

// CompletionChunk is the provider's streaming delta.
type CompletionChunk struct {
	DeltaText string
	Done      bool
	Err       error  // set on the final chunk when the stream broke
	Usage     *Usage // on final chunk when available
}

// Provider is the chat-completion backend.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
	Stream(ctx context.Context, in PromptInput, opts Options) (<-chan CompletionChunk, error)
}
