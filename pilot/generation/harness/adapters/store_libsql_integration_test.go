//go:build integration

package adapters

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/suite-pilot/pilot/db"
	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

func TestLibSQLConversationStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := db.ConnectToDB(ctx, filepath.Join(t.TempDir(), "transcripts.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	clk := clockwork.NewFakeClockAt(epoch)
	store := NewLibSQLConversationStore(conn, clk)
	id := uuid.NewString()

	require.NoError(t, store.SaveTurn(ctx, id, ports.Turn{Role: ports.RoleUser, Content: "open the login page"}))
	clk.Advance(time.Second)
	require.NoError(t, store.AppendToolArtifact(ctx, id, "browser_navigate", []byte(`{"status":"success"}`)))
	clk.Advance(time.Second)
	require.NoError(t, store.SaveTurn(ctx, id, ports.Turn{Role: ports.RoleAssistant, Content: "done"}))

	turns, err := store.LoadContext(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)

	assert.Equal(t, ports.RoleUser, turns[0].Role)
	assert.Equal(t, ports.RoleTool, turns[1].Role)
	assert.Equal(t, "browser_navigate", turns[1].Name)
	assert.JSONEq(t, `{"status":"success"}`, turns[1].Content)
	assert.Equal(t, "done", turns[2].Content)
	assert.True(t, turns[0].CreatedAt.Equal(epoch))

	last, err := store.LoadContext(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "done", last[0].Content)

	other, err := store.LoadContext(ctx, uuid.NewString(), 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}
