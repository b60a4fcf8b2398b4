package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const turnsSchema = `
CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	query      TEXT NOT NULL,
	answer     TEXT NOT NULL,
	chunk_ids  TEXT NOT NULL DEFAULT '[]',
	feedback   INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, created_at);
`

// SQLiteStore persists turns to a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and applies
// the schema.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	if _, err := db.Exec(turnsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, turn *Turn) error {
	chunkIDs, err := json.Marshal(turn.ChunkIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, query, answer, chunk_ids, feedback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Query, turn.Answer, string(chunkIDs), turn.Feedback, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]Turn, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, query, answer, chunk_ids, feedback, created_at
		 FROM turns WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var chunkIDs string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Query, &t.Answer, &chunkIDs, &t.Feedback, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		if err := json.Unmarshal([]byte(chunkIDs), &t.ChunkIDs); err != nil {
			return nil, fmt.Errorf("decoding chunk ids: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from the query; callers expect oldest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) RecordFeedback(ctx context.Context, turnID string, feedback int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE turns SET feedback = ? WHERE id = ?`, feedback, turnID)
	if err != nil {
		return fmt.Errorf("updating feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("turn %s not found", turnID)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
