package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

// sessionIndex is the companion index file of a project directory. It
// is the only place the project's real filesystem path appears, so it
// is what creates Project rows and associates sessions with them.
type sessionIndex struct {
	OriginalPath string              `json:"originalPath"`
	Entries      []sessionIndexEntry `json:"entries"`
}

type sessionIndexEntry struct {
	SessionID    string `json:"sessionId"`
	FirstPrompt  string `json:"firstPrompt"`
	Summary      string `json:"summary"`
	MessageCount int    `json:"messageCount"`
	Created      string `json:"created"`
	Modified     string `json:"modified"`
	GitBranch    string `json:"gitBranch"`
	Slug         string `json:"slug"`
	IsSidechain  *bool  `json:"isSidechain"`
}

// ImportSessionIndex re-derives project and session metadata from a
// project's index file. The index is wholesale-replaced by its writer,
// so this importer is snapshot-style: no offsets, and a parse failure
// leaves previously imported rows untouched.
func (r *Router) ImportSessionIndex(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session index %s: %w", path, err)
	}

	var idx sessionIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("malformed session index %s: %w", path, err)
	}
	if idx.OriginalPath == "" {
		return fmt.Errorf("session index %s has no project path", path)
	}

	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		projectID, err := tx.EnsureProject(ctx, idx.OriginalPath, filepath.Base(idx.OriginalPath))
		if err != nil {
			return err
		}

		dir := filepath.Dir(path)
		for _, entry := range idx.Entries {
			if entry.SessionID == "" {
				continue
			}

			jsonlPath := filepath.Join(dir, entry.SessionID+".jsonl")
			if err := tx.EnsureSession(ctx, entry.SessionID, jsonlPath); err != nil {
				return err
			}
			if err := tx.AssociateProject(ctx, entry.SessionID, projectID); err != nil {
				return err
			}

			meta := store.SessionMeta{
				Summary:     entry.Summary,
				FirstPrompt: entry.FirstPrompt,
				Slug:        entry.Slug,
				GitBranch:   entry.GitBranch,
			}
			if ts, ok := parseTimestamp(entry.Created); ok {
				meta.CreatedAt = ts
			}
			if ts, ok := parseTimestamp(entry.Modified); ok {
				meta.ModifiedAt = ts
			}
			if entry.IsSidechain != nil {
				meta.Sidechain = true
				meta.IsSidechain = *entry.IsSidechain
			}
			if err := tx.ApplySessionMeta(ctx, entry.SessionID, meta); err != nil {
				return err
			}
		}

		return tx.RefreshProjectCounts(ctx, projectID)
	})
}
