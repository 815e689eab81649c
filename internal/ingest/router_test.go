package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestClassify(t *testing.T) {
	root := "/home/user/.claude"
	r := NewRouter(root, nil, nil, nil)

	tests := []struct {
		path  string
		kind  Kind
		topic string
	}{
		{"history.jsonl", KindHistory, TopicHistoryAppended},
		{"stats-cache.json", KindStats, TopicStatsUpdated},
		{"projects/-home-user-proj/index.json", KindSessionIndex, TopicSessionsIndexed},
		{"projects/-home-user-proj/0199a213.jsonl", KindTranscript, TopicSessionUpdated},
		{"plans/sharp-wobbling-pixie.md", KindPlan, TopicPlanChanged},
		{"todos/0199a213-agent.json", KindTodo, TopicTodoChanged},
		{"file-history/0199a213/file-abc@v1", KindFileHistory, TopicFileHistoryChanged},
	}

	for _, tt := range tests {
		route, ok := r.Classify(filepath.Join(root, tt.path))
		if !ok {
			t.Errorf("Classify(%s) not matched", tt.path)
			continue
		}
		if route.Kind != tt.kind {
			t.Errorf("Classify(%s) kind = %s, want %s", tt.path, route.Kind, tt.kind)
		}
		if route.Topic != tt.topic {
			t.Errorf("Classify(%s) topic = %s, want %s", tt.path, route.Topic, tt.topic)
		}
	}
}

func TestClassifyRejectsUntracked(t *testing.T) {
	root := "/home/user/.claude"
	r := NewRouter(root, nil, nil, nil)

	untracked := []string{
		filepath.Join(root, "settings.json"),
		filepath.Join(root, ".credentials.json"),
		filepath.Join(root, "projects", "p", "notes.txt"),
		filepath.Join(root, "plans", "draft.txt"),
		"/etc/passwd",
		root,
	}
	for _, path := range untracked {
		if route, ok := r.Classify(path); ok {
			t.Errorf("Classify(%s) matched %s, want no match", path, route.Kind)
		}
	}
}

func TestDispatchUnknownPathIsNoop(t *testing.T) {
	s := openTestStore(t)
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	topic, err := r.Dispatch(context.Background(), filepath.Join(root, "settings.json"))
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if topic != "" {
		t.Errorf("Expected empty topic for untracked path, got %q", topic)
	}
}

func TestDispatchReturnsTopic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	if err := os.MkdirAll(filepath.Join(root, "plans"), 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(root, "plans", "refactor.md")
	writeFile(t, path, "# Refactor the router\n\n- step one\n")

	topic, err := r.Dispatch(ctx, path)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if topic != TopicPlanChanged {
		t.Errorf("Topic = %q, want %q", topic, TopicPlanChanged)
	}

	plan, err := s.Plan(ctx, "refactor.md")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan == nil || plan.Title != "Refactor the router" {
		t.Errorf("Plan not imported via dispatch: %+v", plan)
	}
}

// fakeImporter records which projects were refreshed.
type fakeImporter struct {
	mu       sync.Mutex
	projects []int64
	err      error
}

func (f *fakeImporter) ImportProject(ctx context.Context, projectID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, projectID)
	return f.err
}

func TestDispatchTranscriptTriggersCommitRefresh(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	imp := &fakeImporter{}
	r := NewRouter(root, s, imp, nil)

	// Index first so the session has an owning project.
	projDir := filepath.Join(root, "projects", "-home-user-proj")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(projDir, "index.json"),
		`{"originalPath":"/home/user/proj","entries":[{"sessionId":"sess-1"}]}`)
	if _, err := r.Dispatch(ctx, filepath.Join(projDir, "index.json")); err != nil {
		t.Fatalf("Index dispatch failed: %v", err)
	}

	writeTranscript(t, projDir, "sess-1", sampleTranscript)
	if _, err := r.Dispatch(ctx, filepath.Join(projDir, "sess-1.jsonl")); err != nil {
		t.Fatalf("Transcript dispatch failed: %v", err)
	}

	if len(imp.projects) != 1 {
		t.Fatalf("Commit importer called %d times, want 1", len(imp.projects))
	}

	project, err := s.ProjectByPath(ctx, "/home/user/proj")
	if err != nil {
		t.Fatalf("ProjectByPath failed: %v", err)
	}
	if imp.projects[0] != project.ID {
		t.Errorf("Refreshed project %d, want %d", imp.projects[0], project.ID)
	}
}

func TestDispatchTranscriptWithoutProjectSkipsRefresh(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()

	imp := &fakeImporter{}
	r := NewRouter(root, s, imp, nil)

	projDir := filepath.Join(root, "projects", "-home-user-proj")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTranscript(t, projDir, "sess-1", sampleTranscript)

	if _, err := r.Dispatch(ctx, filepath.Join(projDir, "sess-1.jsonl")); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(imp.projects) != 0 {
		t.Errorf("Commit importer called for unowned session")
	}
}
