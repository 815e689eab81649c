package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureSession creates the session row if it does not exist yet.
// A session may be observed through its transcript before its owning
// project is known; project association happens later via the index.
func (t *Tx) EnsureSession(ctx context.Context, id, jsonlPath string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sessions (id, jsonl_path) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			jsonl_path = CASE WHEN excluded.jsonl_path != '' THEN excluded.jsonl_path ELSE sessions.jsonl_path END
	`, id, jsonlPath)
	if err != nil {
		return fmt.Errorf("failed to ensure session %s: %w", id, err)
	}
	return nil
}

// SessionMeta carries the metadata learned while parsing a batch of
// transcript records or a session index entry. Zero values mean
// "nothing learned" and never erase previously stored values.
type SessionMeta struct {
	Summary     string
	FirstPrompt string
	Slug        string
	GitBranch   string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	IsSidechain bool
	Sidechain   bool // true when IsSidechain was actually observed
}

// ApplySessionMeta merges learned metadata into the session row.
// created_at and first_prompt are first-write-wins; everything else is
// replace-only-if-non-empty, so a later record with missing metadata
// does not erase what an earlier one taught us.
func (t *Tx) ApplySessionMeta(ctx context.Context, id string, m SessionMeta) error {
	sidechain := 0
	if m.IsSidechain {
		sidechain = 1
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE sessions SET
			summary      = CASE WHEN ? != '' THEN ? ELSE summary END,
			first_prompt = CASE WHEN first_prompt = '' AND ? != '' THEN ? ELSE first_prompt END,
			slug         = CASE WHEN ? != '' THEN ? ELSE slug END,
			git_branch   = CASE WHEN ? != '' THEN ? ELSE git_branch END,
			created_at   = CASE WHEN created_at IS NULL AND ? IS NOT NULL THEN ? ELSE created_at END,
			modified_at  = CASE WHEN ? IS NOT NULL THEN ? ELSE modified_at END,
			is_sidechain = CASE WHEN ? THEN ? ELSE is_sidechain END
		WHERE id = ?
	`,
		m.Summary, m.Summary,
		m.FirstPrompt, m.FirstPrompt,
		m.Slug, m.Slug,
		m.GitBranch, m.GitBranch,
		timeToNullString(m.CreatedAt), timeToNullString(m.CreatedAt),
		timeToNullString(m.ModifiedAt), timeToNullString(m.ModifiedAt),
		m.Sidechain, sidechain,
		id)
	if err != nil {
		return fmt.Errorf("failed to apply session meta for %s: %w", id, err)
	}
	return nil
}

// BumpSessionCounters adds a batch's message and token counts to the
// session's running aggregates and advances its transcript ledger.
func (t *Tx) BumpSessionCounters(ctx context.Context, id string, messages int, input, output, cacheRead, cacheCreation, indexedBytes int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE sessions SET
			message_count         = message_count + ?,
			input_tokens          = input_tokens + ?,
			output_tokens         = output_tokens + ?,
			cache_read_tokens     = cache_read_tokens + ?,
			cache_creation_tokens = cache_creation_tokens + ?,
			indexed_bytes         = MAX(indexed_bytes, ?)
		WHERE id = ?
	`, messages, input, output, cacheRead, cacheCreation, indexedBytes, id)
	if err != nil {
		return fmt.Errorf("failed to bump counters for session %s: %w", id, err)
	}
	return nil
}

// AssociateProject links a session to its owning project once the
// project is known from a session index.
func (t *Tx) AssociateProject(ctx context.Context, sessionID string, projectID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE sessions SET project_id = ? WHERE id = ?`, projectID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to associate session %s with project %d: %w", sessionID, projectID, err)
	}
	return nil
}

// Session retrieves a single session.
// Returns (nil, nil) when the session is unknown.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, COALESCE(project_id, 0), jsonl_path, summary, first_prompt,
		       message_count, created_at, modified_at, git_branch, is_sidechain,
		       slug, indexed_bytes, input_tokens, output_tokens,
		       cache_read_tokens, cache_creation_tokens
		FROM sessions WHERE id = ?
	`, id)

	var sess Session
	var createdAt, modifiedAt sql.NullString
	var sidechain int
	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.JSONLPath, &sess.Summary,
		&sess.FirstPrompt, &sess.MessageCount, &createdAt, &modifiedAt,
		&sess.GitBranch, &sidechain, &sess.Slug, &sess.IndexedBytes,
		&sess.InputTokens, &sess.OutputTokens, &sess.CacheReadTokens,
		&sess.CacheCreationTokens)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session %s: %w", id, err)
	}
	sess.CreatedAt = nullStringToTime(createdAt)
	sess.ModifiedAt = nullStringToTime(modifiedAt)
	sess.IsSidechain = sidechain != 0
	return &sess, nil
}

// SessionWindows returns the time window of every session of a project
// that has both endpoints set. Sessions without a window cannot be
// matched against commits and are excluded.
func (s *Store) SessionWindows(ctx context.Context, projectID int64) ([]SessionWindow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, created_at, modified_at
		FROM sessions
		WHERE project_id = ? AND created_at IS NOT NULL AND modified_at IS NOT NULL
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session windows: %w", err)
	}
	defer rows.Close()

	var windows []SessionWindow
	for rows.Next() {
		var w SessionWindow
		var createdAt, modifiedAt sql.NullString
		if err := rows.Scan(&w.SessionID, &createdAt, &modifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session window: %w", err)
		}
		w.CreatedAt = nullStringToTime(createdAt)
		w.ModifiedAt = nullStringToTime(modifiedAt)
		if w.CreatedAt.IsZero() || w.ModifiedAt.IsZero() {
			continue
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// EarliestSessionStart returns the created_at of the oldest session of
// a project, bounding the very first commit import.
// Returns the zero time when the project has no anchored session yet.
func (s *Store) EarliestSessionStart(ctx context.Context, projectID int64) (time.Time, error) {
	var created sql.NullString
	err := s.conn.QueryRowContext(ctx, `
		SELECT MIN(created_at) FROM sessions
		WHERE project_id = ? AND created_at IS NOT NULL
	`, projectID).Scan(&created)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query earliest session: %w", err)
	}
	return nullStringToTime(created), nil
}

// SessionHasCommitCommand reports whether the session's own recorded
// tool activity shows it issuing a commit. It scans the session's shell
// invocations for a commit subcommand; a hit upgrades commit links for
// this session from inferred to direct.
func (s *Store) SessionHasCommitCommand(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tool_uses
		WHERE session_id = ?
		  AND tool_name = 'Bash'
		  AND input_json LIKE '%git commit%'
	`, sessionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to scan tool uses for %s: %w", sessionID, err)
	}
	return n > 0, nil
}
