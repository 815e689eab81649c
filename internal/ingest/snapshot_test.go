package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

func TestImportSessionIndex(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	projDir := filepath.Join(root, "projects", "-home-user-proj")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	indexPath := filepath.Join(projDir, "index.json")
	writeFile(t, indexPath, `{
		"originalPath": "/home/user/proj",
		"entries": [
			{"sessionId": "sess-1", "firstPrompt": "fix the bug", "summary": "Bug fix",
			 "created": "2026-01-10T09:00:00Z", "modified": "2026-01-10T10:00:00Z",
			 "gitBranch": "main", "slug": "bug-fix"},
			{"sessionId": "sess-2", "isSidechain": true}
		]
	}`)

	if err := r.ImportSessionIndex(ctx, indexPath); err != nil {
		t.Fatalf("ImportSessionIndex failed: %v", err)
	}

	project, err := s.ProjectByPath(ctx, "/home/user/proj")
	if err != nil {
		t.Fatalf("ProjectByPath failed: %v", err)
	}
	if project == nil {
		t.Fatal("Project not created from index")
	}
	if project.SessionCount != 2 {
		t.Errorf("SessionCount = %d, want 2", project.SessionCount)
	}

	sess, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if sess.ProjectID != project.ID {
		t.Errorf("Session not associated with project")
	}
	if sess.Summary != "Bug fix" || sess.Slug != "bug-fix" {
		t.Errorf("Metadata not imported: %q/%q", sess.Summary, sess.Slug)
	}
	if sess.JSONLPath != filepath.Join(projDir, "sess-1.jsonl") {
		t.Errorf("JSONLPath = %q", sess.JSONLPath)
	}

	side, _ := s.Session(ctx, "sess-2")
	if !side.IsSidechain {
		t.Error("Sidechain flag not imported")
	}
}

func TestImportSessionIndexMalformedLeavesRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	projDir := filepath.Join(root, "projects", "-home-user-proj")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	indexPath := filepath.Join(projDir, "index.json")
	writeFile(t, indexPath, `{"originalPath":"/home/user/proj","entries":[{"sessionId":"sess-1","summary":"kept"}]}`)

	if err := r.ImportSessionIndex(ctx, indexPath); err != nil {
		t.Fatalf("First import failed: %v", err)
	}

	// Writer is mid-rewrite: truncated JSON.
	writeFile(t, indexPath, `{"originalPath":"/home/user/proj","entr`)

	if err := r.ImportSessionIndex(ctx, indexPath); err == nil {
		t.Fatal("Expected error for malformed index")
	}

	sess, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if sess == nil || sess.Summary != "kept" {
		t.Error("Previously imported rows were damaged by a failed re-import")
	}
}

func TestImportPlanTitleFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := filepath.Join(root, "unnamed-plan.md")
	writeFile(t, path, "no heading here\njust prose\n")

	if err := r.ImportPlan(ctx, path); err != nil {
		t.Fatalf("ImportPlan failed: %v", err)
	}

	plan, err := s.Plan(ctx, "unnamed-plan.md")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Title != "unnamed-plan" {
		t.Errorf("Title = %q, want filename stem fallback", plan.Title)
	}
}

func TestImportPlanReplacesContent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := filepath.Join(root, "plan.md")
	writeFile(t, path, "# First\n\nv1\n")
	if err := r.ImportPlan(ctx, path); err != nil {
		t.Fatalf("First import failed: %v", err)
	}

	writeFile(t, path, "# Second\n\nv2\n")
	if err := r.ImportPlan(ctx, path); err != nil {
		t.Fatalf("Second import failed: %v", err)
	}

	plan, _ := s.Plan(ctx, "plan.md")
	if plan.Title != "Second" {
		t.Errorf("Title = %q, want replaced", plan.Title)
	}
}

func TestImportTodosMalformedLeavesPrevious(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := filepath.Join(root, "sess-1-agent.json")
	writeFile(t, path, `[{"content":"write tests","status":"in_progress","activeForm":"Writing tests"}]`)
	if err := r.ImportTodos(ctx, path); err != nil {
		t.Fatalf("First import failed: %v", err)
	}

	writeFile(t, path, `[{"content":"write te`)
	if err := r.ImportTodos(ctx, path); err == nil {
		t.Fatal("Expected error for malformed snapshot")
	}

	todos, err := s.Todos(ctx, "sess-1-agent.json")
	if err != nil {
		t.Fatalf("Todos failed: %v", err)
	}
	if len(todos) != 1 || todos[0].Content != "write tests" {
		t.Error("Previous snapshot lost after failed re-import")
	}
}

func TestImportFileHistoryOnlyAdds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	sessionDir := filepath.Join(root, "file-history", "sess-1")
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(sessionDir, "main.go@v1"), "package main\n")

	if err := r.ImportFileHistory(ctx, sessionDir); err != nil {
		t.Fatalf("First import failed: %v", err)
	}

	writeFile(t, filepath.Join(sessionDir, "main.go@v2"), "package main\n\nfunc main() {}\n")
	if err := r.ImportFileHistory(ctx, sessionDir); err != nil {
		t.Fatalf("Second import failed: %v", err)
	}

	entries, err := s.FileHistory(ctx, "sess-1")
	if err != nil {
		t.Fatalf("FileHistory failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 backups, got %d", len(entries))
	}
	if entries[0].BackupFilename != "main.go@v1" || entries[1].BackupFilename != "main.go@v2" {
		t.Errorf("Backups = %q, %q", entries[0].BackupFilename, entries[1].BackupFilename)
	}
}

func TestImportStatsValidatesAndStoresVerbatim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := filepath.Join(root, "stats-cache.json")
	payload := `{"totalSessions": 42, "totalCost": 12.5}`
	writeFile(t, path, payload)

	if err := r.ImportStats(ctx, path); err != nil {
		t.Fatalf("ImportStats failed: %v", err)
	}

	got, captured, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if got != payload {
		t.Errorf("Payload not stored verbatim: %q", got)
	}
	if captured.IsZero() {
		t.Error("Capture time not recorded")
	}

	writeFile(t, path, `{"truncat`)
	if err := r.ImportStats(ctx, path); err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
	got, _, _ = s.Stats(ctx)
	if got != payload {
		t.Error("Previous snapshot lost after failed re-import")
	}
}

func TestIngestHistoryTimestampFormats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := filepath.Join(root, "history.jsonl")
	writeFile(t, path,
		`{"display":"first prompt","project":"/home/user/proj","timestamp":1767862800000}`+"\n"+
			`{"display":"second prompt","project":"/home/user/proj","timestamp":"2026-01-10T09:00:00Z"}`+"\n")

	res, err := r.IngestHistory(ctx, path)
	if err != nil {
		t.Fatalf("IngestHistory failed: %v", err)
	}
	if res.Applied != 2 {
		t.Errorf("Applied = %d, want 2", res.Applied)
	}

	n, err := s.HistoryCount(ctx)
	if err != nil {
		t.Fatalf("HistoryCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("HistoryCount = %d, want 2", n)
	}
}

func TestIngestHistoryRejectsEmptyDisplay(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := filepath.Join(root, "history.jsonl")
	writeFile(t, path, `{"project":"/home/user/proj","timestamp":1767862800000}`+"\n")

	res, err := r.IngestHistory(ctx, path)
	if err != nil {
		t.Fatalf("IngestHistory failed: %v", err)
	}
	if res.Skipped != 1 || res.Applied != 0 {
		t.Errorf("Applied/Skipped = %d/%d, want 0/1", res.Applied, res.Skipped)
	}
}

func TestPlanTimestampsSurviveRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	updated := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	err := s.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UpsertPlan(ctx, &store.Plan{
			Filename: "p.md", Title: "P", Content: "#", UpdatedAt: updated,
		})
	})
	if err != nil {
		t.Fatalf("UpsertPlan failed: %v", err)
	}

	plan, err := s.Plan(ctx, "p.md")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !plan.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", plan.UpdatedAt, updated)
	}
}
