package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EnsureProject creates the project row for path if it does not exist
// and returns its id. Display name defaults to the last path element
// and is only written on first creation.
func (t *Tx) EnsureProject(ctx context.Context, path, displayName string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO projects (path, display_name) VALUES (?, ?)
		ON CONFLICT(path) DO NOTHING
	`, path, displayName)
	if err != nil {
		return 0, fmt.Errorf("failed to insert project %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}

	var id int64
	if err := t.tx.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE path = ?`, path).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to look up project %s: %w", path, err)
	}
	return id, nil
}

// RefreshProjectCounts recomputes session_count and message_count for a
// project from its sessions. Counts are derived, never hand-maintained,
// so replays cannot drift them.
func (t *Tx) RefreshProjectCounts(ctx context.Context, projectID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE projects SET
			session_count = (SELECT COUNT(*) FROM sessions WHERE project_id = ?),
			message_count = (SELECT COALESCE(SUM(message_count), 0) FROM sessions WHERE project_id = ?)
		WHERE id = ?
	`, projectID, projectID, projectID)
	if err != nil {
		return fmt.Errorf("failed to refresh counts for project %d: %w", projectID, err)
	}
	return nil
}

// SetLastIndexedCommit advances the commit-import resume point.
func (t *Tx) SetLastIndexedCommit(ctx context.Context, projectID int64, hash string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET last_indexed_commit = ? WHERE id = ?`, hash, projectID)
	if err != nil {
		return fmt.Errorf("failed to set last indexed commit: %w", err)
	}
	return nil
}

// SetRemoteURL records the project's fetch remote, if discovered.
// Empty values never overwrite a previously learned URL.
func (t *Tx) SetRemoteURL(ctx context.Context, projectID int64, url string) error {
	if url == "" {
		return nil
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE projects SET remote_url = ? WHERE id = ?`, url, projectID)
	if err != nil {
		return fmt.Errorf("failed to set remote url: %w", err)
	}
	return nil
}

// ProjectByID retrieves a single project.
// Returns sql.ErrNoRows if not found.
func (s *Store) ProjectByID(ctx context.Context, id int64) (*Project, error) {
	return scanProject(s.conn.QueryRowContext(ctx, `
		SELECT id, path, display_name, session_count, message_count,
		       last_indexed_commit, remote_url, logo_path
		FROM projects WHERE id = ?
	`, id))
}

// ProjectByPath retrieves a project by its filesystem path.
// Returns (nil, nil) when the project is not known yet.
func (s *Store) ProjectByPath(ctx context.Context, path string) (*Project, error) {
	p, err := scanProject(s.conn.QueryRowContext(ctx, `
		SELECT id, path, display_name, session_count, message_count,
		       last_indexed_commit, remote_url, logo_path
		FROM projects WHERE path = ?
	`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// Projects lists all known projects ordered by path.
func (s *Store) Projects(ctx context.Context) ([]*Project, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, path, display_name, session_count, message_count,
		       last_indexed_commit, remote_url, logo_path
		FROM projects ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Path, &p.DisplayName, &p.SessionCount, &p.MessageCount,
		&p.LastIndexedCommit, &p.RemoteURL, &p.LogoPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	return &p, nil
}
