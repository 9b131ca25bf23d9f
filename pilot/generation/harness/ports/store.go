package harnessports

import (
	"context"
	"time"
)

// Turn is one persisted transcript entry.
type Turn struct {
	Role      string    // "user" | "assistant" | "tool"
	Content   string    // text, or JSON for tool artifacts
	Name      string    // tool name for tool artifacts
	CreatedAt time.Time // stamped by the store when zero
}

// ConversationStore persists transcripts and tool artifacts. It is write-mostly:
// the agent loop never replays stored turns into a request.
type ConversationStore interface {
	SaveTurn(ctx context.Context, conversationID string, turn Turn) error
	LoadContext(ctx context.Context, conversationID string, k int) ([]Turn, error) // last k turns, oldest first
	AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error
}
