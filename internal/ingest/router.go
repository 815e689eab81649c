package ingest

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

// Change-notification topics, one per logical kind of store mutation.
// Delivery to subscribers is at-least-once; duplicates are expected.
const (
	TopicSessionUpdated     = "session-updated"
	TopicSessionsIndexed    = "sessions-indexed"
	TopicHistoryAppended    = "history-appended"
	TopicPlanChanged        = "plan-changed"
	TopicTodoChanged        = "todo-changed"
	TopicFileHistoryChanged = "file-history-changed"
	TopicStatsUpdated       = "stats-updated"
)

// Kind identifies which parser or importer a path belongs to.
type Kind int

const (
	// KindNone means the path is not tracked by the pipeline.
	KindNone Kind = iota
	// KindTranscript is a per-session transcript under the projects tree.
	KindTranscript
	// KindSessionIndex is a project's companion session index.
	KindSessionIndex
	// KindHistory is the append-only prompt history log.
	KindHistory
	// KindPlan is a markdown plan document.
	KindPlan
	// KindTodo is a todo snapshot file.
	KindTodo
	// KindFileHistory is a versioned file backup.
	KindFileHistory
	// KindStats is the aggregate statistics snapshot.
	KindStats
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTranscript:
		return "transcript"
	case KindSessionIndex:
		return "session-index"
	case KindHistory:
		return "history"
	case KindPlan:
		return "plan"
	case KindTodo:
		return "todo"
	case KindFileHistory:
		return "file-history"
	case KindStats:
		return "stats"
	default:
		return "none"
	}
}

// Route is the classification of a changed path.
type Route struct {
	Kind  Kind
	Topic string
}

// CommitImporter re-imports version-control commits for a project. It
// is satisfied by gitlog.Importer and faked in tests.
type CommitImporter interface {
	ImportProject(ctx context.Context, projectID int64) error
}

// Router classifies changed paths and dispatches them to the matched
// parser or importer. Both the filesystem watcher and the synchronous
// hook notification funnel through here, so there is exactly one code
// path for "what does this path mean".
type Router struct {
	root    string
	store   *store.Store
	commits CommitImporter
	logger  *log.Logger
}

// NewRouter creates a change router for the given watched root.
// commits may be nil to disable commit refresh after transcript applies.
func NewRouter(root string, st *store.Store, commits CommitImporter, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(os.Stderr, "[ingest] ", log.LstdFlags)
	}
	return &Router{
		root:    root,
		store:   st,
		commits: commits,
		logger:  logger,
	}
}

// Classify maps a path onto its parser and notification topic. It is a
// pure function of the path; unknown paths return (Route{}, false).
func (r *Router) Classify(path string) (Route, bool) {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Route{}, false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	base := parts[len(parts)-1]

	switch {
	case rel == "history.jsonl":
		return Route{Kind: KindHistory, Topic: TopicHistoryAppended}, true
	case rel == "stats-cache.json":
		return Route{Kind: KindStats, Topic: TopicStatsUpdated}, true
	case parts[0] == "projects" && len(parts) >= 2 && base == "index.json":
		return Route{Kind: KindSessionIndex, Topic: TopicSessionsIndexed}, true
	case parts[0] == "projects" && strings.HasSuffix(base, ".jsonl"):
		return Route{Kind: KindTranscript, Topic: TopicSessionUpdated}, true
	case parts[0] == "plans" && strings.HasSuffix(base, ".md"):
		return Route{Kind: KindPlan, Topic: TopicPlanChanged}, true
	case parts[0] == "todos" && strings.HasSuffix(base, ".json"):
		return Route{Kind: KindTodo, Topic: TopicTodoChanged}, true
	case parts[0] == "file-history" && len(parts) >= 2:
		return Route{Kind: KindFileHistory, Topic: TopicFileHistoryChanged}, true
	default:
		return Route{}, false
	}
}

// Dispatch classifies a changed path, runs the matched parser or
// importer, and returns the notification topic the caller should
// broadcast. Unknown paths dispatch to nothing and return "". Calling
// Dispatch twice for the same path with no intervening file change is a
// no-op on the second call: every importer either consults the ledger
// or re-derives an identical snapshot.
func (r *Router) Dispatch(ctx context.Context, path string) (string, error) {
	route, ok := r.Classify(path)
	if !ok {
		return "", nil
	}

	switch route.Kind {
	case KindTranscript:
		if _, err := r.IngestTranscript(ctx, path); err != nil {
			return "", err
		}
		// A transcript update is the leading signal that new commits
		// may now be attributable; refresh the owning project.
		r.refreshCommits(ctx, strings.TrimSuffix(filepath.Base(path), ".jsonl"))
	case KindSessionIndex:
		if err := r.ImportSessionIndex(ctx, path); err != nil {
			return "", err
		}
	case KindHistory:
		if _, err := r.IngestHistory(ctx, path); err != nil {
			return "", err
		}
	case KindPlan:
		if err := r.ImportPlan(ctx, path); err != nil {
			return "", err
		}
	case KindTodo:
		if err := r.ImportTodos(ctx, path); err != nil {
			return "", err
		}
	case KindFileHistory:
		rel, _ := filepath.Rel(r.root, path)
		parts := strings.Split(filepath.ToSlash(rel), "/")
		sessionDir := filepath.Join(r.root, parts[0], parts[1])
		if err := r.ImportFileHistory(ctx, sessionDir); err != nil {
			return "", err
		}
	case KindStats:
		if err := r.ImportStats(ctx, path); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unhandled route kind %s", route.Kind)
	}

	return route.Topic, nil
}

// refreshCommits re-runs the commit importer for the project owning
// sessionID. Failures degrade to "no new commits this cycle" and are
// retried on the next transcript apply.
func (r *Router) refreshCommits(ctx context.Context, sessionID string) {
	if r.commits == nil {
		return
	}
	sess, err := r.store.Session(ctx, sessionID)
	if err != nil {
		r.logger.Printf("Commit refresh: failed to load session %s: %v", sessionID, err)
		return
	}
	if sess == nil || sess.ProjectID == 0 {
		return
	}
	if err := r.commits.ImportProject(ctx, sess.ProjectID); err != nil {
		r.logger.Printf("Commit refresh for project %d failed: %v", sess.ProjectID, err)
	}
}
