package gitlog

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"os"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

// Importer pulls new commits for a project's working copy into the
// store and links them to overlapping sessions. One run is one
// transaction: the commit rows, the session links, and the resume
// point all land together, so a crash mid-run replays cleanly.
type Importer struct {
	store  *store.Store
	lister CommitLister
	logger *log.Logger
}

// NewImporter creates a commit importer. lister defaults to the git
// binary with the default timeout.
func NewImporter(st *store.Store, lister CommitLister, logger *log.Logger) *Importer {
	if lister == nil {
		lister = &CLI{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[gitlog] ", log.LstdFlags)
	}
	return &Importer{store: st, lister: lister, logger: logger}
}

// ImportProject imports commits newer than the project's resume point
// and attributes each to the sessions whose time window contains its
// timestamp. Attribution is "inferred" unless the session's own tool
// activity shows it issuing a commit, which upgrades it to "direct".
//
// Failures listing commits degrade to "no new commits this cycle": the
// resume point is untouched and the next run retries the same range.
func (im *Importer) ImportProject(ctx context.Context, projectID int64) error {
	project, err := im.store.ProjectByID(ctx, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	sinceHash := project.LastIndexedCommit
	sinceTime, err := im.store.EarliestSessionStart(ctx, projectID)
	if err != nil {
		return err
	}
	if sinceHash == "" && sinceTime.IsZero() {
		// Nothing anchors the initial import range yet.
		return nil
	}

	commits, err := im.lister.ListCommits(ctx, project.Path, sinceHash, sinceTime)
	if err != nil {
		im.logger.Printf("Listing commits for %s failed: %v", project.Path, err)
		return nil
	}
	if len(commits) == 0 {
		return nil
	}

	windows, err := im.store.SessionWindows(ctx, projectID)
	if err != nil {
		return err
	}

	// direct/inferred is a property of the session, not of the commit,
	// so resolve it once per session per run.
	matchTypes := make(map[string]string, len(windows))
	for _, w := range windows {
		hasCommit, err := im.store.SessionHasCommitCommand(ctx, w.SessionID)
		if err != nil {
			return err
		}
		if hasCommit {
			matchTypes[w.SessionID] = store.MatchDirect
		} else {
			matchTypes[w.SessionID] = store.MatchInferred
		}
	}

	var inserted int
	err = im.store.WithTx(ctx, func(tx *store.Tx) error {
		for _, c := range commits {
			id, fresh, err := tx.InsertCommit(ctx, &store.Commit{
				ProjectID:     projectID,
				Hash:          c.Hash,
				ShortHash:     c.ShortHash,
				Subject:       c.Subject,
				Body:          c.Body,
				Author:        c.Author,
				AuthorEmail:   c.AuthorEmail,
				Timestamp:     c.Timestamp,
				FilesChanged:  c.FilesChanged,
				Insertions:    c.Insertions,
				Deletions:     c.Deletions,
				AgentAuthored: c.AgentAuthored,
			})
			if err != nil {
				return err
			}
			if fresh {
				inserted++
			}

			for _, w := range windows {
				if c.Timestamp.Before(w.CreatedAt) || c.Timestamp.After(w.ModifiedAt) {
					continue
				}
				if err := tx.LinkSessionCommit(ctx, w.SessionID, id, matchTypes[w.SessionID]); err != nil {
					return err
				}
			}
		}

		// commits is newest-first; its head is the next resume point.
		if err := tx.SetLastIndexedCommit(ctx, projectID, commits[0].Hash); err != nil {
			return err
		}
		return tx.SetRemoteURL(ctx, projectID, im.remoteURL(ctx, project))
	})
	if err != nil {
		return err
	}

	if inserted > 0 {
		im.logger.Printf("Imported %d commits for %s", inserted, project.Path)
	}
	return nil
}

// ImportAll runs ImportProject for every known project. Per-project
// failures are logged and do not stop the sweep.
func (im *Importer) ImportAll(ctx context.Context) error {
	projects, err := im.store.Projects(ctx)
	if err != nil {
		return err
	}
	for _, p := range projects {
		if err := im.ImportProject(ctx, p.ID); err != nil {
			im.logger.Printf("Commit import for %s failed: %v", p.Path, err)
		}
	}
	return nil
}

func (im *Importer) remoteURL(ctx context.Context, project *store.Project) string {
	if project.RemoteURL != "" {
		return ""
	}
	return im.lister.RemoteURL(ctx, project.Path)
}
