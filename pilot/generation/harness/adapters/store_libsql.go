package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// LibSQLConversationStore persists transcripts in the conversation_turns
// table created by the pilot/db migrations.
type LibSQLConversationStore struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewLibSQLConversationStore creates a store on an already migrated db.
func NewLibSQLConversationStore(db *sql.DB, clk clockwork.Clock) *LibSQLConversationStore {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &LibSQLConversationStore{db: db, clock: clk}
}

// SaveTurn appends turn to the conversation.
func (s *LibSQLConversationStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.clock.Now()
	}

	const query = `
		INSERT INTO conversation_turns (conversation_id, role, name, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, conversationID, turn.Role, turn.Name, turn.Content, createdAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to save turn: %w", err)
	}
	return nil
}

// LoadContext loads the last k turns for a conversation, oldest first.
func (s *LibSQLConversationStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	const query = `
		SELECT role, name, content, created_at FROM conversation_turns
		WHERE conversation_id = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []ports.Turn
	for rows.Next() {
		var (
			turn      ports.Turn
			createdAt int64
		)
		if err := rows.Scan(&turn.Role, &turn.Name, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.CreatedAt = time.UnixMilli(createdAt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendToolArtifact stores a tool execution record as a tool turn.
func (s *LibSQLConversationStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return s.SaveTurn(ctx, conversationID, ports.Turn{
		Role:    ports.RoleTool,
		Name:    name,
		Content: string(payload),
	})
}

var _ ports.ConversationStore = (*LibSQLConversationStore)(nil)
