package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleTranscript = `{"type":"user","uuid":"u1","sessionId":"sess-1","timestamp":"2026-01-10T09:00:00Z","gitBranch":"main","message":{"role":"user","content":"Fix the flaky watcher test"}}
{"type":"assistant","uuid":"a1","parentUuid":"u1","sessionId":"sess-1","timestamp":"2026-01-10T09:00:05Z","message":{"role":"assistant","model":"m-1","content":[{"type":"text","text":"Looking at the test now."},{"type":"tool_use","id":"tu1","name":"Bash","input":{"command":"go test ./..."}}],"usage":{"input_tokens":100,"output_tokens":50,"cache_read_input_tokens":20}}}
{"type":"summary","summary":"Watcher test fix","sessionId":"sess-1"}
`

func writeTranscript(t *testing.T, dir, sessionID, content string) string {
	t.Helper()
	path := filepath.Join(dir, sessionID+".jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write transcript: %v", err)
	}
	return path
}

func TestIngestTranscriptEndToEnd(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := writeTranscript(t, root, "sess-1", sampleTranscript)

	res, err := r.IngestTranscript(ctx, path)
	if err != nil {
		t.Fatalf("IngestTranscript failed: %v", err)
	}
	if res.Applied != 3 {
		t.Errorf("Applied = %d, want 3", res.Applied)
	}
	if res.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", res.Skipped)
	}

	sess, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if sess == nil {
		t.Fatal("Session not created")
	}
	if sess.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2 (summary is not a message)", sess.MessageCount)
	}
	if sess.FirstPrompt != "Fix the flaky watcher test" {
		t.Errorf("FirstPrompt = %q", sess.FirstPrompt)
	}
	if sess.Summary != "Watcher test fix" {
		t.Errorf("Summary = %q", sess.Summary)
	}
	if sess.GitBranch != "main" {
		t.Errorf("GitBranch = %q", sess.GitBranch)
	}
	if sess.InputTokens != 100 || sess.OutputTokens != 50 || sess.CacheReadTokens != 20 {
		t.Errorf("Token totals = %d/%d/%d, want 100/50/20",
			sess.InputTokens, sess.OutputTokens, sess.CacheReadTokens)
	}
	if sess.CreatedAt.IsZero() || !sess.ModifiedAt.After(sess.CreatedAt) {
		t.Errorf("Window not derived from timestamps: %v .. %v", sess.CreatedAt, sess.ModifiedAt)
	}

	tools, err := s.ToolUses(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ToolUses failed: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("Expected 1 tool use, got %d", len(tools))
	}
	if tools[0].ToolName != "Bash" || tools[0].ToolUseID != "tu1" {
		t.Errorf("Tool use = %q/%q", tools[0].ToolName, tools[0].ToolUseID)
	}

	has, err := s.SessionHasCommitCommand(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionHasCommitCommand failed: %v", err)
	}
	if has {
		t.Error("No commit command was issued, but one was detected")
	}
}

func TestIngestTranscriptReplayIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := writeTranscript(t, root, "sess-1", sampleTranscript)

	if _, err := r.IngestTranscript(ctx, path); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}
	if _, err := r.IngestTranscript(ctx, path); err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	sess, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if sess.MessageCount != 2 {
		t.Errorf("MessageCount drifted on replay: %d", sess.MessageCount)
	}
	if sess.InputTokens != 100 {
		t.Errorf("InputTokens drifted on replay: %d", sess.InputTokens)
	}
}

func TestIngestTranscriptIncrementalAppend(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := writeTranscript(t, root, "sess-1", sampleTranscript)
	if _, err := r.IngestTranscript(ctx, path); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}

	appendFile(t, path, `{"type":"user","uuid":"u2","sessionId":"sess-1","timestamp":"2026-01-10T09:05:00Z","message":{"role":"user","content":[{"type":"tool_result","content":"ok: 1 passed"},{"type":"text","text":"now commit it"}]}}`+"\n")

	res, err := r.IngestTranscript(ctx, path)
	if err != nil {
		t.Fatalf("Incremental ingest failed: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("Applied = %d, want only the appended record", res.Applied)
	}

	msgs, err := s.Messages(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(msgs))
	}

	// Flattened text includes tool results and text but not tool calls.
	last := msgs[len(msgs)-1]
	if last.ContentText != "ok: 1 passed\nnow commit it" {
		t.Errorf("Flattened content = %q", last.ContentText)
	}

	// first_prompt stays pinned to the very first user message.
	sess, _ := s.Session(ctx, "sess-1")
	if sess.FirstPrompt != "Fix the flaky watcher test" {
		t.Errorf("FirstPrompt overwritten by later user message: %q", sess.FirstPrompt)
	}
}

func TestIngestTranscriptGrowingFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	path := writeTranscript(t, root, "sess-1",
		`{"type":"user","uuid":"u1","sessionId":"sess-1","timestamp":"2026-01-10T09:00:00Z","message":{"role":"user","content":"run the tests"}}`+"\n")

	if _, err := r.IngestTranscript(ctx, path); err != nil {
		t.Fatalf("First ingest failed: %v", err)
	}

	appendFile(t, path,
		`{"type":"assistant","uuid":"a1","parentUuid":"u1","sessionId":"sess-1","timestamp":"2026-01-10T09:00:05Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu1","name":"Bash","input":{"command":"go test ./..."}}],"usage":{"input_tokens":100,"output_tokens":50,"cache_read_input_tokens":20}}}`+"\n")

	if _, err := r.IngestTranscript(ctx, path); err != nil {
		t.Fatalf("Second ingest failed: %v", err)
	}

	n, err := s.MessageCount(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("MessageCount = %d, want 2", n)
	}

	tools, err := s.ToolUses(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ToolUses failed: %v", err)
	}
	if len(tools) != 1 {
		t.Errorf("ToolUses = %d, want 1", len(tools))
	}

	sess, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if sess.InputTokens != 100 || sess.OutputTokens != 50 || sess.CacheReadTokens != 20 {
		t.Errorf("Aggregates = %d/%d/%d, want 100/50/20",
			sess.InputTokens, sess.OutputTokens, sess.CacheReadTokens)
	}
}

func TestIngestTranscriptMalformedLineSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	content := `{"type":"user","uuid":"u1","sessionId":"sess-1","timestamp":"2026-01-10T09:00:00Z","message":{"role":"user","content":"hello"}}
this is not json
{"type":"user","uuid":"u2","sessionId":"sess-1","timestamp":"2026-01-10T09:01:00Z","message":{"role":"user","content":"world"}}
`
	path := writeTranscript(t, root, "sess-1", content)

	res, err := r.IngestTranscript(ctx, path)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if res.Applied != 2 || res.Skipped != 1 {
		t.Errorf("Applied/Skipped = %d/%d, want 2/1", res.Applied, res.Skipped)
	}

	n, err := s.MessageCount(ctx, "sess-1")
	if err != nil {
		t.Fatalf("MessageCount failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected messages on both sides of the bad line, got %d", n)
	}
}

func TestIngestTranscriptDetectsCommitCommand(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	root := t.TempDir()
	r := NewRouter(root, s, nil, nil)

	content := `{"type":"assistant","uuid":"a1","sessionId":"sess-1","timestamp":"2026-01-10T09:00:00Z","message":{"role":"assistant","content":[{"type":"tool_use","id":"tu1","name":"Bash","input":{"command":"git commit -m 'fix'"}}]}}
`
	path := writeTranscript(t, root, "sess-1", content)

	if _, err := r.IngestTranscript(ctx, path); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	has, err := s.SessionHasCommitCommand(ctx, "sess-1")
	if err != nil {
		t.Fatalf("SessionHasCommitCommand failed: %v", err)
	}
	if !has {
		t.Error("Commit command in tool input not detected")
	}
}
