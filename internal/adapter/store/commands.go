package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"boardpilot/internal/domain"
)

// GetCommand returns the lifecycle record for (boardID, commandID), or
// domain.ErrNotFound.
func (s *SQLiteStore) GetCommand(ctx context.Context, boardID, commandID string) (*domain.AICommand, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT command_id, board_id, prompt, actor, status, summary, error,
		       idempotency_key, client_request_id, created_at, updated_at
		FROM ai_commands WHERE board_id = ? AND command_id = ?`,
		boardID, commandID,
	)
	cmd, err := scanCommand(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewDomainError("SQLiteStore.GetCommand", domain.ErrNotFound, commandID)
		}
		return nil, err
	}
	return cmd, nil
}

// CreateRunning inserts a new record in the running state. The primary key
// makes a second insert with the same id fail loudly instead of overwriting.
func (s *SQLiteStore) CreateRunning(ctx context.Context, cmd *domain.AICommand) error {
	now := time.Now().UTC()
	cmd.Status = domain.CommandRunning
	cmd.Summary = "Running..."
	cmd.CreatedAt = now
	cmd.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_commands
			(board_id, command_id, prompt, actor, status, summary, error,
			 idempotency_key, client_request_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?)`,
		cmd.BoardID, cmd.ID, cmd.Prompt, cmd.Actor, cmd.Status, cmd.Summary,
		cmd.IdempotencyKey, cmd.ClientRequestID,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return domain.NewDomainError("SQLiteStore.CreateRunning", domain.ErrDuplicate, cmd.ID)
		}
		return fmt.Errorf("create running command: %w", err)
	}
	return nil
}

// Finalize transitions the record to a terminal state. The error column is
// populated only for failed status and cleared otherwise.
func (s *SQLiteStore) Finalize(ctx context.Context, boardID, commandID, status, summary, errMsg string) error {
	if status != domain.CommandCompleted && status != domain.CommandFailed {
		return domain.NewDomainError("SQLiteStore.Finalize", domain.ErrInvalidInput, status)
	}
	if status != domain.CommandFailed {
		errMsg = ""
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE ai_commands SET status = ?, summary = ?, error = ?, updated_at = ?
		WHERE board_id = ? AND command_id = ?`,
		status, summary, errMsg, time.Now().UTC().Format(time.RFC3339Nano),
		boardID, commandID,
	)
	if err != nil {
		return fmt.Errorf("finalize command: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NewDomainError("SQLiteStore.Finalize", domain.ErrNotFound, commandID)
	}
	return nil
}

// ListRecentCommands returns up to limit records for the board, newest first.
func (s *SQLiteStore) ListRecentCommands(ctx context.Context, boardID string, limit int) ([]domain.AICommand, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT command_id, board_id, prompt, actor, status, summary, error,
		       idempotency_key, client_request_id, created_at, updated_at
		FROM ai_commands WHERE board_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		boardID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var cmds []domain.AICommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, *cmd)
	}
	return cmds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*domain.AICommand, error) {
	var cmd domain.AICommand
	var createdAt, updatedAt string
	err := row.Scan(
		&cmd.ID, &cmd.BoardID, &cmd.Prompt, &cmd.Actor, &cmd.Status, &cmd.Summary,
		&cmd.Error, &cmd.IdempotencyKey, &cmd.ClientRequestID, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	cmd.CreatedAt = parseTime(createdAt)
	cmd.UpdatedAt = parseTime(updatedAt)
	return &cmd, nil
}
