package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

// ImportPlan upserts one markdown plan document, keyed by filename.
// The title is the first top-level heading, falling back to the
// filename stem.
func (r *Router) ImportPlan(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat plan %s: %w", path, err)
	}

	filename := filepath.Base(path)
	plan := &store.Plan{
		Filename:  filename,
		Title:     planTitle(string(data), filename),
		Content:   string(data),
		UpdatedAt: info.ModTime().UTC(),
	}

	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UpsertPlan(ctx, plan)
	})
}

func planTitle(content, filename string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// todoEntry is one item of a todo snapshot file.
type todoEntry struct {
	Content    string `json:"content"`
	Status     string `json:"status"`
	ActiveForm string `json:"activeForm"`
}

// ImportTodos replaces the todo set derived from one snapshot file. A
// parse failure leaves the previous snapshot untouched; snapshots are
// replaced wholesale, never partially overwritten.
func (r *Router) ImportTodos(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read todos %s: %w", path, err)
	}

	var entries []todoEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("malformed todo snapshot %s: %w", path, err)
	}

	todos := make([]*store.Todo, 0, len(entries))
	for _, e := range entries {
		todos = append(todos, &store.Todo{
			Content:    e.Content,
			Status:     e.Status,
			ActiveForm: e.ActiveForm,
		})
	}

	sourceFile := filepath.Base(path)
	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.ReplaceTodos(ctx, sourceFile, todos)
	})
}

// ImportFileHistory re-derives the backup listing for one session's
// file-history directory. Rows are insert-or-ignore keyed by
// (session_id, backup_filename); backups are only ever added.
func (r *Router) ImportFileHistory(ctx context.Context, sessionDir string) error {
	sessionID := filepath.Base(sessionDir)

	entries, err := os.ReadDir(sessionDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to list file history %s: %w", sessionDir, err)
	}

	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			err = tx.InsertFileHistoryEntry(ctx, &store.FileHistoryEntry{
				SessionID:      sessionID,
				BackupFilename: entry.Name(),
				SizeBytes:      info.Size(),
				ModifiedAt:     info.ModTime().UTC(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ImportStats replaces the aggregate statistics snapshot. The payload
// is validated as JSON but stored verbatim; aggregates are computed on
// read from raw counters, never pre-digested here.
func (r *Router) ImportStats(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stats snapshot %s: %w", path, err)
	}

	if !json.Valid(data) {
		return fmt.Errorf("malformed stats snapshot %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat stats snapshot %s: %w", path, err)
	}

	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SaveStats(ctx, string(data), info.ModTime().UTC())
	})
}
