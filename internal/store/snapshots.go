package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertPlan replaces a plan document wholesale, keyed by filename.
func (t *Tx) UpsertPlan(ctx context.Context, p *Plan) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO plans (filename, title, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, p.Filename, p.Title, p.Content, timeToNullString(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert plan %s: %w", p.Filename, err)
	}
	return nil
}

// ReplaceTodos swaps out the complete todo set derived from one source
// file. Delete-and-reinsert inside the surrounding transaction keeps
// readers from ever observing a half-replaced set.
func (t *Tx) ReplaceTodos(ctx context.Context, sourceFile string, todos []*Todo) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM todos WHERE source_file = ?`, sourceFile); err != nil {
		return fmt.Errorf("failed to clear todos for %s: %w", sourceFile, err)
	}

	for i, todo := range todos {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO todos (source_file, content, status, active_form, position)
			VALUES (?, ?, ?, ?, ?)
		`, sourceFile, todo.Content, todo.Status, todo.ActiveForm, i)
		if err != nil {
			return fmt.Errorf("failed to insert todo for %s: %w", sourceFile, err)
		}
	}
	return nil
}

// InsertFileHistoryEntry records one file backup, idempotent on
// (session_id, backup_filename).
func (t *Tx) InsertFileHistoryEntry(ctx context.Context, e *FileHistoryEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO file_history (session_id, backup_filename, size_bytes, modified_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, backup_filename) DO NOTHING
	`, e.SessionID, e.BackupFilename, e.SizeBytes, timeToNullString(e.ModifiedAt))
	if err != nil {
		return fmt.Errorf("failed to insert file history entry: %w", err)
	}
	return nil
}

// SaveStats replaces the single-row aggregate statistics snapshot.
func (t *Tx) SaveStats(ctx context.Context, payload string, capturedAt time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stats_snapshot (id, payload, captured_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			captured_at = excluded.captured_at
	`, payload, timeToNullString(capturedAt))
	if err != nil {
		return fmt.Errorf("failed to save stats snapshot: %w", err)
	}
	return nil
}

// Plan retrieves a plan by filename. Returns (nil, nil) when unknown.
func (s *Store) Plan(ctx context.Context, filename string) (*Plan, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT filename, title, content, updated_at FROM plans WHERE filename = ?`, filename)
	var p Plan
	var updated sql.NullString
	err := row.Scan(&p.Filename, &p.Title, &p.Content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	p.UpdatedAt = nullStringToTime(updated)
	return &p, nil
}

// Todos returns the current todo set for a source file, in position order.
func (s *Store) Todos(ctx context.Context, sourceFile string) ([]*Todo, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, source_file, content, status, active_form, position
		FROM todos WHERE source_file = ? ORDER BY position ASC
	`, sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	defer rows.Close()

	var todos []*Todo
	for rows.Next() {
		var td Todo
		if err := rows.Scan(&td.ID, &td.SourceFile, &td.Content, &td.Status,
			&td.ActiveForm, &td.Position); err != nil {
			return nil, fmt.Errorf("failed to scan todo: %w", err)
		}
		todos = append(todos, &td)
	}
	return todos, rows.Err()
}

// FileHistory returns the recorded backups for a session.
func (s *Store) FileHistory(ctx context.Context, sessionID string) ([]*FileHistoryEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, backup_filename, size_bytes, modified_at
		FROM file_history WHERE session_id = ? ORDER BY backup_filename ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file history: %w", err)
	}
	defer rows.Close()

	var entries []*FileHistoryEntry
	for rows.Next() {
		var e FileHistoryEntry
		var modified sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.BackupFilename, &e.SizeBytes, &modified); err != nil {
			return nil, fmt.Errorf("failed to scan file history entry: %w", err)
		}
		e.ModifiedAt = nullStringToTime(modified)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Stats returns the current aggregate statistics snapshot payload.
// Returns ("", zero time, nil) when no snapshot has been ingested.
func (s *Store) Stats(ctx context.Context) (string, time.Time, error) {
	var payload string
	var captured sql.NullString
	err := s.conn.QueryRowContext(ctx,
		`SELECT payload, captured_at FROM stats_snapshot WHERE id = 1`).Scan(&payload, &captured)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to read stats snapshot: %w", err)
	}
	return payload, nullStringToTime(captured), nil
}
