package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

// transcriptRecord is the envelope of one transcript JSONL line.
type transcriptRecord struct {
	Type        string          `json:"type"`
	UUID        string          `json:"uuid"`
	ParentUUID  string          `json:"parentUuid"`
	SessionID   string          `json:"sessionId"`
	Timestamp   string          `json:"timestamp"`
	IsSidechain *bool           `json:"isSidechain"`
	GitBranch   string          `json:"gitBranch"`
	Slug        string          `json:"slug"`
	Summary     string          `json:"summary"`
	Message     json.RawMessage `json:"message"`
}

// messageBody is the message payload of a user or assistant record.
type messageBody struct {
	ID      string          `json:"id"`
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
	Usage   *tokenUsage     `json:"usage"`
}

type tokenUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

// transcriptBatch carries the running state of one incremental apply:
// metadata learned so far (latest non-empty value wins) and the token
// and message deltas of the rows actually inserted.
type transcriptBatch struct {
	sessionID string

	meta store.SessionMeta

	messages      int
	input         int64
	output        int64
	cacheRead     int64
	cacheCreation int64
}

// IngestTranscript applies the unprocessed suffix of a per-session
// transcript file. The session id is the transcript's filename stem.
func (r *Router) IngestTranscript(ctx context.Context, path string) (Result, error) {
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	if sessionID == "" {
		return Result{}, fmt.Errorf("transcript path %s has no session id", path)
	}

	batch := &transcriptBatch{sessionID: sessionID}

	finish := func(ctx context.Context, tx *store.Tx, consumed int64) error {
		if err := tx.EnsureSession(ctx, sessionID, path); err != nil {
			return err
		}
		if err := tx.ApplySessionMeta(ctx, sessionID, batch.meta); err != nil {
			return err
		}
		return tx.BumpSessionCounters(ctx, sessionID, batch.messages,
			batch.input, batch.output, batch.cacheRead, batch.cacheCreation, consumed)
	}

	return ApplyNewRecords(ctx, r.store, path, batch.apply, finish, r.logger)
}

// apply handles one transcript record. Unknown record types are ignored
// without error; only undecodable lines count as skipped.
func (b *transcriptBatch) apply(ctx context.Context, tx *store.Tx, line []byte, offset int64) error {
	var rec transcriptRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return fmt.Errorf("malformed transcript record: %w", err)
	}

	b.observeMeta(&rec)

	switch rec.Type {
	case "user", "assistant":
		return b.applyMessage(ctx, tx, &rec, offset)
	case "summary":
		// Summary records update session metadata in place and do not
		// produce a message row.
		if rec.Summary != "" {
			b.meta.Summary = rec.Summary
		}
		return nil
	default:
		return nil
	}
}

// observeMeta folds a record's session metadata into the batch,
// preferring the latest non-empty value.
func (b *transcriptBatch) observeMeta(rec *transcriptRecord) {
	if rec.Slug != "" {
		b.meta.Slug = rec.Slug
	}
	if rec.GitBranch != "" {
		b.meta.GitBranch = rec.GitBranch
	}
	if rec.IsSidechain != nil {
		b.meta.Sidechain = true
		b.meta.IsSidechain = *rec.IsSidechain
	}
	if ts, ok := parseTimestamp(rec.Timestamp); ok {
		if b.meta.CreatedAt.IsZero() {
			b.meta.CreatedAt = ts
		}
		b.meta.ModifiedAt = ts
	}
}

func (b *transcriptBatch) applyMessage(ctx context.Context, tx *store.Tx, rec *transcriptRecord, offset int64) error {
	var body messageBody
	if len(rec.Message) > 0 {
		if err := json.Unmarshal(rec.Message, &body); err != nil {
			return fmt.Errorf("malformed message body: %w", err)
		}
	}

	segments := decodeSegments(body.Content)
	text := flattenSegments(segments)

	if rec.Type == "user" && b.meta.FirstPrompt == "" && text != "" {
		b.meta.FirstPrompt = text
	}

	ts, _ := parseTimestamp(rec.Timestamp)

	msg := &store.Message{
		SessionID:   b.sessionID,
		UUID:        rec.UUID,
		ParentUUID:  rec.ParentUUID,
		Type:        rec.Type,
		Role:        body.Role,
		Model:       body.Model,
		ContentText: text,
		ContentJSON: string(body.Content),
		Timestamp:   ts,
		ByteOffset:  offset,
	}
	if body.Usage != nil {
		msg.InputTokens = body.Usage.InputTokens
		msg.OutputTokens = body.Usage.OutputTokens
		msg.CacheReadTokens = body.Usage.CacheReadInputTokens
		msg.CacheCreationTokens = body.Usage.CacheCreationInputTokens
	}

	msgID, inserted, err := tx.InsertMessage(ctx, msg)
	if err != nil {
		return err
	}
	if inserted {
		b.messages++
		b.input += msg.InputTokens
		b.output += msg.OutputTokens
		b.cacheRead += msg.CacheReadTokens
		b.cacheCreation += msg.CacheCreationTokens
	}

	if rec.Type != "assistant" {
		return nil
	}

	// One ToolUse row per tool-invocation segment, keyed to the
	// just-inserted message.
	for _, seg := range segments {
		if seg.Kind != SegmentToolUse {
			continue
		}
		tu := &store.ToolUse{
			MessageID: msgID,
			SessionID: b.sessionID,
			ToolName:  seg.ToolName,
			ToolUseID: seg.ToolUseID,
			InputJSON: string(seg.Input),
			Timestamp: ts,
		}
		if err := tx.InsertToolUse(ctx, tu); err != nil {
			return err
		}
	}
	return nil
}

// parseTimestamp parses a transcript timestamp. The format is RFC3339
// with optional fractional seconds.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
