package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Offset returns how many bytes of path have been applied to the store.
// Unseen files report zero.
func (s *Store) Offset(ctx context.Context, path string) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT indexed_bytes FROM file_offsets WHERE file_path = ?`, path).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read offset for %s: %w", path, err)
	}
	return n, nil
}

// SetOffset advances the ledger for path. It runs inside the same
// transaction as the records the new offset licenses. The MAX() guard
// keeps indexed_bytes monotonically non-decreasing even if two triggers
// race past the pre-transaction freshness check.
func (t *Tx) SetOffset(ctx context.Context, path string, indexedBytes, mtimeNs int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO file_offsets (file_path, indexed_bytes, mtime_ns)
		VALUES (?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			indexed_bytes = MAX(file_offsets.indexed_bytes, excluded.indexed_bytes),
			mtime_ns = excluded.mtime_ns
	`, path, indexedBytes, mtimeNs)
	if err != nil {
		return fmt.Errorf("failed to set offset for %s: %w", path, err)
	}
	return nil
}
