package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertCommit stores one imported commit, idempotent on
// (project_id, hash). A duplicate is expected on replay and reported
// as inserted=false, not as an error.
func (t *Tx) InsertCommit(ctx context.Context, c *Commit) (int64, bool, error) {
	agent := 0
	if c.AgentAuthored {
		agent = 1
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO commits (
			project_id, hash, short_hash, subject, body, author, author_email,
			timestamp, files_changed, insertions, deletions, is_authored_by_agent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, hash) DO NOTHING
	`, c.ProjectID, c.Hash, c.ShortHash, c.Subject, c.Body, c.Author,
		c.AuthorEmail, timeToNullString(c.Timestamp), c.FilesChanged,
		c.Insertions, c.Deletions, agent)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert commit %s: %w", c.ShortHash, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var id int64
		err := t.tx.QueryRowContext(ctx,
			`SELECT id FROM commits WHERE project_id = ? AND hash = ?`,
			c.ProjectID, c.Hash).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("failed to look up existing commit: %w", err)
		}
		return id, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read commit id: %w", err)
	}
	return id, true, nil
}

// LinkSessionCommit records a session-commit attribution, idempotent on
// (session_id, commit_id).
func (t *Tx) LinkSessionCommit(ctx context.Context, sessionID string, commitID int64, matchType string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO session_commits (session_id, commit_id, match_type)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id, commit_id) DO NOTHING
	`, sessionID, commitID, matchType)
	if err != nil {
		return fmt.Errorf("failed to link session %s to commit %d: %w", sessionID, commitID, err)
	}
	return nil
}

// CommitCount returns the number of commits stored for a project.
func (s *Store) CommitCount(ctx context.Context, projectID int64) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM commits WHERE project_id = ?`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count commits: %w", err)
	}
	return n, nil
}

// CommitLinks returns all commit links for a session.
func (s *Store) CommitLinks(ctx context.Context, sessionID string) ([]*SessionCommitLink, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, commit_id, match_type
		FROM session_commits WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query commit links: %w", err)
	}
	defer rows.Close()

	var links []*SessionCommitLink
	for rows.Next() {
		var l SessionCommitLink
		if err := rows.Scan(&l.ID, &l.SessionID, &l.CommitID, &l.MatchType); err != nil {
			return nil, fmt.Errorf("failed to scan commit link: %w", err)
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

// CommitByHash retrieves a single imported commit.
// Returns (nil, nil) when unknown.
func (s *Store) CommitByHash(ctx context.Context, projectID int64, hash string) (*Commit, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, project_id, hash, short_hash, subject, body, author,
		       author_email, timestamp, files_changed, insertions, deletions,
		       is_authored_by_agent
		FROM commits WHERE project_id = ? AND hash = ?
	`, projectID, hash)

	var c Commit
	var ts sql.NullString
	var agent int
	err := row.Scan(&c.ID, &c.ProjectID, &c.Hash, &c.ShortHash, &c.Subject,
		&c.Body, &c.Author, &c.AuthorEmail, &ts, &c.FilesChanged,
		&c.Insertions, &c.Deletions, &agent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan commit: %w", err)
	}
	c.Timestamp = nullStringToTime(ts)
	c.AgentAuthored = agent != 0
	return &c, nil
}
