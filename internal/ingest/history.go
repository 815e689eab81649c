package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

// historyRecord is one line of the append-only prompt history log.
// Timestamps appear either as epoch milliseconds or as RFC3339 strings
// depending on the writer's version.
type historyRecord struct {
	Display   string          `json:"display"`
	Project   string          `json:"project"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// IngestHistory applies the unprocessed suffix of the history log.
func (r *Router) IngestHistory(ctx context.Context, path string) (Result, error) {
	apply := func(ctx context.Context, tx *store.Tx, line []byte, offset int64) error {
		var rec historyRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("malformed history record: %w", err)
		}
		if rec.Display == "" {
			return fmt.Errorf("history record has no display text")
		}
		return tx.InsertHistoryEntry(ctx, &store.HistoryEntry{
			Display:     rec.Display,
			ProjectPath: rec.Project,
			Timestamp:   parseHistoryTimestamp(rec.Timestamp),
			ByteOffset:  offset,
		})
	}

	return ApplyNewRecords(ctx, r.store, path, apply, nil, r.logger)
}

func parseHistoryTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil && millis > 0 {
		return time.UnixMilli(millis).UTC()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if ts, ok := parseTimestamp(s); ok {
			return ts
		}
	}
	return time.Time{}
}
