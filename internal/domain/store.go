package domain

import "context"

// WriteBatch stages board-object mutations for one atomic commit.
// Nothing reaches the store until Commit; a batch that is never committed
// has no effect.
type WriteBatch interface {
	Create(boardID string, obj *BoardObject)
	Update(boardID, objectID string, fields map[string]any)
	// Len reports the number of staged writes.
	Len() int
	// Commit applies every staged write in one transaction.
	Commit(ctx context.Context) error
}

// BoardStore provides access to board metadata and per-board object
// collections.
type BoardStore interface {
	GetBoard(ctx context.Context, boardID string) (*Board, error)
	CreateBoard(ctx context.Context, b *Board) error
	ListObjects(ctx context.Context, boardID string) ([]BoardObject, error)
	NewBatch() WriteBatch
}

// CommandStore persists AICommand lifecycle records.
type CommandStore interface {
	// GetCommand returns ErrNotFound when no record exists.
	GetCommand(ctx context.Context, boardID, commandID string) (*AICommand, error)
	// CreateRunning writes a new record in the running state. It returns
	// ErrDuplicate if a record with the same id already exists rather than
	// silently overwriting it.
	CreateRunning(ctx context.Context, cmd *AICommand) error
	// Finalize transitions the record to completed or failed. The error
	// field is set only for failed status and cleared otherwise.
	Finalize(ctx context.Context, boardID, commandID, status, summary, errMsg string) error
	// ListRecentCommands returns up to limit records for the board, newest
	// first.
	ListRecentCommands(ctx context.Context, boardID string, limit int) ([]AICommand, error)
}
