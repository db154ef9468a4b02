package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardpilot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoardRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBoard(ctx, &domain.Board{
		ID:        "board-1",
		Name:      "Sprint planning",
		CreatedBy: "user-1",
	}))

	got, err := s.GetBoard(ctx, "board-1")
	require.NoError(t, err)
	assert.Equal(t, "board-1", got.ID)
	assert.Equal(t, "Sprint planning", got.Name)
	assert.Equal(t, "user-1", got.CreatedBy)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetBoardNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetBoard(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBatchCreateAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := s.NewBatch()
	batch.Create("board-1", &domain.BoardObject{
		ID: "obj-1", Type: domain.TypeSticky,
		X: 10, Y: 20, Width: 120, Height: 80,
		Text: "hello", Color: "#FEF3C7",
	})
	batch.Create("board-1", &domain.BoardObject{
		ID: "obj-2", Type: domain.TypeFrame,
		X: 0, Y: 0, Width: 320, Height: 240, Title: "Strengths",
	})
	batch.Create("board-1", &domain.BoardObject{
		ID: "obj-3", Type: domain.TypeConnector,
		FromID: "obj-1", ToID: "obj-2", Style: domain.StyleArrow,
	})
	require.Equal(t, 3, batch.Len())
	require.NoError(t, batch.Commit(ctx))

	objects, err := s.ListObjects(ctx, "board-1")
	require.NoError(t, err)
	require.Len(t, objects, 3)

	byID := make(map[string]domain.BoardObject, len(objects))
	for _, o := range objects {
		byID[o.ID] = o
	}
	assert.Equal(t, "hello", byID["obj-1"].Text)
	assert.Equal(t, "#FEF3C7", byID["obj-1"].Color)
	assert.Equal(t, "Strengths", byID["obj-2"].Title)
	assert.Equal(t, "obj-1", byID["obj-3"].FromID)
	assert.Equal(t, domain.StyleArrow, byID["obj-3"].Style)
}

func TestBatchUpdateMergesFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := s.NewBatch()
	batch.Create("board-1", &domain.BoardObject{
		ID: "obj-1", Type: domain.TypeSticky,
		X: 10, Y: 20, Width: 120, Height: 80, Text: "before",
	})
	require.NoError(t, batch.Commit(ctx))

	batch = s.NewBatch()
	batch.Update("board-1", "obj-1", map[string]any{"x": 50.0, "text": "after"})
	require.NoError(t, batch.Commit(ctx))

	objects, err := s.ListObjects(ctx, "board-1")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, 50.0, objects[0].X)
	assert.Equal(t, 20.0, objects[0].Y)
	assert.Equal(t, "after", objects[0].Text)
}

func TestBatchCommitIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The second write targets a missing object, so the create before it
	// must not land either.
	batch := s.NewBatch()
	batch.Create("board-1", &domain.BoardObject{
		ID: "obj-1", Type: domain.TypeSticky, Width: 120, Height: 80,
	})
	batch.Update("board-1", "ghost", map[string]any{"x": 1.0})
	require.Error(t, batch.Commit(ctx))

	objects, err := s.ListObjects(ctx, "board-1")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestEmptyBatchCommitIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.NewBatch().Commit(context.Background()))
}

func TestListObjectsSkipsMalformedDocs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := s.NewBatch()
	batch.Create("board-1", &domain.BoardObject{
		ID: "obj-1", Type: domain.TypeSticky, Width: 120, Height: 80,
	})
	require.NoError(t, batch.Commit(ctx))

	_, err := s.db.Exec(
		"INSERT INTO board_objects (board_id, object_id, doc) VALUES (?, ?, ?)",
		"board-1", "junk-1", `{"type":"hologram"}`,
	)
	require.NoError(t, err)

	objects, err := s.ListObjects(ctx, "board-1")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "obj-1", objects[0].ID)
}

func TestCommandLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cmd := &domain.AICommand{
		ID:              "cmd-1",
		BoardID:         "board-1",
		Prompt:          "Add a sticky note",
		Actor:           "user-1",
		IdempotencyKey:  "req-1",
		ClientRequestID: "req-1",
	}
	require.NoError(t, s.CreateRunning(ctx, cmd))

	got, err := s.GetCommand(ctx, "board-1", "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandRunning, got.Status)
	assert.Equal(t, "Running...", got.Summary)

	require.NoError(t, s.Finalize(ctx, "board-1", "cmd-1", domain.CommandCompleted, "Added one sticky note.", ""))

	got, err = s.GetCommand(ctx, "board-1", "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandCompleted, got.Status)
	assert.Equal(t, "Added one sticky note.", got.Summary)
	assert.Empty(t, got.Error)
}

func TestCreateRunningDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cmd := &domain.AICommand{ID: "cmd-1", BoardID: "board-1", Prompt: "p", Actor: "u"}
	require.NoError(t, s.CreateRunning(ctx, cmd))

	err := s.CreateRunning(ctx, &domain.AICommand{ID: "cmd-1", BoardID: "board-1", Prompt: "p", Actor: "u"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestFinalizeFailedKeepsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRunning(ctx, &domain.AICommand{
		ID: "cmd-1", BoardID: "board-1", Prompt: "p", Actor: "u",
	}))
	require.NoError(t, s.Finalize(ctx, "board-1", "cmd-1",
		domain.CommandFailed, "Failed to execute AI command.", "Unknown tool: teleport"))

	got, err := s.GetCommand(ctx, "board-1", "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CommandFailed, got.Status)
	assert.Equal(t, "Unknown tool: teleport", got.Error)
}

func TestFinalizeCompletedClearsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRunning(ctx, &domain.AICommand{
		ID: "cmd-1", BoardID: "board-1", Prompt: "p", Actor: "u",
	}))
	require.NoError(t, s.Finalize(ctx, "board-1", "cmd-1",
		domain.CommandCompleted, "done", "stale error"))

	got, err := s.GetCommand(ctx, "board-1", "cmd-1")
	require.NoError(t, err)
	assert.Empty(t, got.Error)
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	err := s.Finalize(context.Background(), "board-1", "cmd-1", domain.CommandRunning, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFinalizeMissingCommand(t *testing.T) {
	s := newTestStore(t)
	err := s.Finalize(context.Background(), "board-1", "nope", domain.CommandCompleted, "done", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListRecentCommandsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateRunning(ctx, &domain.AICommand{
			ID:      string(rune('a' + i)),
			BoardID: "board-1",
			Prompt:  "p", Actor: "u",
		}))
	}
	require.NoError(t, s.CreateRunning(ctx, &domain.AICommand{
		ID: "other", BoardID: "board-2", Prompt: "p", Actor: "u",
	}))

	cmds, err := s.ListRecentCommands(ctx, "board-1", 2)
	require.NoError(t, err)
	assert.Len(t, cmds, 2)
	for _, cmd := range cmds {
		assert.Equal(t, "board-1", cmd.BoardID)
	}
}
