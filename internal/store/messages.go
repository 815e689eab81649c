package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertMessage appends one message row. When the transcript record
// carries a stable uuid, insertion is idempotent on (session_id, uuid):
// re-applying a prefix after a crash between record application and
// ledger commit never duplicates rows. Returns the row id and whether a
// new row was actually inserted.
func (t *Tx) InsertMessage(ctx context.Context, m *Message) (int64, bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO messages (
			session_id, uuid, parent_uuid, type, role, model,
			content_text, content_json, input_tokens, output_tokens,
			cache_read_tokens, cache_creation_tokens, timestamp, byte_offset
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, uuid) DO NOTHING
	`,
		m.SessionID, nullString(m.UUID), m.ParentUUID, m.Type, m.Role, m.Model,
		m.ContentText, m.ContentJSON, m.InputTokens, m.OutputTokens,
		m.CacheReadTokens, m.CacheCreationTokens, timeToNullString(m.Timestamp),
		m.ByteOffset)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert message: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		// Duplicate replay; recover the existing row id for tool-use linking.
		var id int64
		err := t.tx.QueryRowContext(ctx,
			`SELECT id FROM messages WHERE session_id = ? AND uuid = ?`,
			m.SessionID, m.UUID).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("failed to look up existing message: %w", err)
		}
		return id, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read message id: %w", err)
	}
	return id, true, nil
}

// InsertToolUse appends one tool invocation row, idempotent on
// (session_id, tool_use_id).
func (t *Tx) InsertToolUse(ctx context.Context, tu *ToolUse) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tool_uses (message_id, session_id, tool_name, tool_use_id, input_json, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, tool_use_id) DO NOTHING
	`, tu.MessageID, tu.SessionID, tu.ToolName, nullString(tu.ToolUseID),
		tu.InputJSON, timeToNullString(tu.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert tool use: %w", err)
	}
	return nil
}

// InsertHistoryEntry appends one prompt-history row.
func (t *Tx) InsertHistoryEntry(ctx context.Context, h *HistoryEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO history (display, project_path, timestamp, byte_offset)
		VALUES (?, ?, ?, ?)
	`, h.Display, h.ProjectPath, timeToNullString(h.Timestamp), h.ByteOffset)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return nil
}

// MessageCount returns the number of messages stored for a session.
func (s *Store) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// Messages returns a session's messages in file order.
func (s *Store) Messages(ctx context.Context, sessionID string) ([]*Message, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, COALESCE(uuid, ''), parent_uuid, type, role, model,
		       content_text, content_json, input_tokens, output_tokens,
		       cache_read_tokens, cache_creation_tokens, timestamp, byte_offset
		FROM messages WHERE session_id = ? ORDER BY byte_offset ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var m Message
		var ts sql.NullString
		err := rows.Scan(&m.ID, &m.SessionID, &m.UUID, &m.ParentUUID, &m.Type,
			&m.Role, &m.Model, &m.ContentText, &m.ContentJSON, &m.InputTokens,
			&m.OutputTokens, &m.CacheReadTokens, &m.CacheCreationTokens, &ts,
			&m.ByteOffset)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Timestamp = nullStringToTime(ts)
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// ToolUses returns a session's tool invocations in insertion order.
func (s *Store) ToolUses(ctx context.Context, sessionID string) ([]*ToolUse, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, message_id, session_id, tool_name, COALESCE(tool_use_id, ''), input_json, timestamp
		FROM tool_uses WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool uses: %w", err)
	}
	defer rows.Close()

	var uses []*ToolUse
	for rows.Next() {
		var tu ToolUse
		var ts sql.NullString
		err := rows.Scan(&tu.ID, &tu.MessageID, &tu.SessionID, &tu.ToolName,
			&tu.ToolUseID, &tu.InputJSON, &ts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool use: %w", err)
		}
		tu.Timestamp = nullStringToTime(ts)
		uses = append(uses, &tu)
	}
	return uses, rows.Err()
}

// HistoryCount returns the number of stored prompt-history entries.
func (s *Store) HistoryCount(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}
