package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"boardpilot/internal/domain"
)

// SQLiteStore implements domain.BoardStore and domain.CommandStore using
// SQLite. Board objects are stored one row per object with the field map as
// a JSON document, mirroring the boards/{id}/objects/{id} collection layout.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and runs schema migration.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open board db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate board db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS boards (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS board_objects (
			board_id  TEXT NOT NULL,
			object_id TEXT NOT NULL,
			doc       TEXT NOT NULL,
			PRIMARY KEY (board_id, object_id)
		);
		CREATE TABLE IF NOT EXISTS ai_commands (
			board_id          TEXT NOT NULL,
			command_id        TEXT NOT NULL,
			prompt            TEXT NOT NULL,
			actor             TEXT NOT NULL,
			status            TEXT NOT NULL,
			summary           TEXT NOT NULL,
			error             TEXT NOT NULL DEFAULT '',
			idempotency_key   TEXT NOT NULL,
			client_request_id TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			updated_at        TEXT NOT NULL,
			PRIMARY KEY (board_id, command_id)
		);
		CREATE INDEX IF NOT EXISTS idx_ai_commands_created
			ON ai_commands (board_id, created_at DESC);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetBoard returns board metadata, or domain.ErrNotFound.
func (s *SQLiteStore) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_by, created_at, updated_at FROM boards WHERE id = ?", boardID,
	)
	var b domain.Board
	var createdAt, updatedAt string
	if err := row.Scan(&b.ID, &b.Name, &b.CreatedBy, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewDomainError("SQLiteStore.GetBoard", domain.ErrNotFound, boardID)
		}
		return nil, err
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

// CreateBoard inserts a board metadata record.
func (s *SQLiteStore) CreateBoard(ctx context.Context, b *domain.Board) error {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO boards (id, name, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		b.ID, b.Name, b.CreatedBy,
		b.CreatedAt.Format(time.RFC3339Nano), b.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

// ListObjects loads every object on the board. Documents that do not parse
// into a known object type are skipped, matching the tolerant read path of
// the client.
func (s *SQLiteStore) ListObjects(ctx context.Context, boardID string) ([]domain.BoardObject, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT object_id, doc FROM board_objects WHERE board_id = ? ORDER BY object_id", boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var objects []domain.BoardObject
	for rows.Next() {
		var id, docJSON string
		if err := rows.Scan(&id, &docJSON); err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			continue
		}
		if obj, ok := domain.BoardObjectFromDoc(id, doc); ok {
			objects = append(objects, *obj)
		}
	}
	return objects, rows.Err()
}

// NewBatch returns an empty write batch bound to this store.
func (s *SQLiteStore) NewBatch() domain.WriteBatch {
	return &writeBatch{store: s}
}

type stagedWrite struct {
	boardID  string
	objectID string
	create   *domain.BoardObject // nil for field updates
	fields   map[string]any
}

// writeBatch stages creates and field updates; Commit applies them in one
// transaction so a partial batch never becomes visible.
type writeBatch struct {
	store  *SQLiteStore
	writes []stagedWrite
}

func (b *writeBatch) Create(boardID string, obj *domain.BoardObject) {
	b.writes = append(b.writes, stagedWrite{boardID: boardID, objectID: obj.ID, create: obj})
}

func (b *writeBatch) Update(boardID, objectID string, fields map[string]any) {
	b.writes = append(b.writes, stagedWrite{boardID: boardID, objectID: objectID, fields: fields})
}

func (b *writeBatch) Len() int { return len(b.writes) }

func (b *writeBatch) Commit(ctx context.Context) error {
	if len(b.writes) == 0 {
		return nil
	}
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, w := range b.writes {
		if w.create != nil {
			docJSON, err := json.Marshal(w.create.ToDoc())
			if err != nil {
				return fmt.Errorf("marshal object %s: %w", w.objectID, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO board_objects (board_id, object_id, doc) VALUES (?, ?, ?)",
				w.boardID, w.objectID, string(docJSON),
			); err != nil {
				return fmt.Errorf("stage create %s: %w", w.objectID, err)
			}
			continue
		}

		// Field-level update: merge into the stored document.
		var docJSON string
		err := tx.QueryRowContext(ctx,
			"SELECT doc FROM board_objects WHERE board_id = ? AND object_id = ?",
			w.boardID, w.objectID,
		).Scan(&docJSON)
		if err != nil {
			return fmt.Errorf("stage update %s: %w", w.objectID, err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
			return fmt.Errorf("decode object %s: %w", w.objectID, err)
		}
		for k, v := range w.fields {
			doc[k] = v
		}
		merged, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal object %s: %w", w.objectID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE board_objects SET doc = ? WHERE board_id = ? AND object_id = ?",
			string(merged), w.boardID, w.objectID,
		); err != nil {
			return fmt.Errorf("stage update %s: %w", w.objectID, err)
		}
	}

	return tx.Commit()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Compile-time interface checks.
var (
	_ domain.BoardStore   = (*SQLiteStore)(nil)
	_ domain.CommandStore = (*SQLiteStore)(nil)
)
