// Package ingest implements the incremental ingestion pipeline: the
// byte-offset ledger, the transcript and history parsers, the snapshot
// importers, and the change router that maps filesystem paths onto them.
//
// The pipeline is built around one guarantee: every byte range of every
// tracked file is applied to the store exactly once. Triggers may arrive
// more than once (watcher events and hook notifications race), but the
// ledger advance commits in the same transaction as the rows it
// licenses, so a duplicate trigger observes the ledger already advanced
// and does nothing.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/sessionwatch/sessionwatch/internal/store"
)

// RecordApplier applies one complete, newline-terminated record to the
// store inside the batch transaction. offset is the byte position of
// the record within the file, for provenance. A returned error marks
// the record as skipped; it never aborts the batch (skip-and-continue
// on record-level failure).
type RecordApplier func(ctx context.Context, tx *store.Tx, line []byte, offset int64) error

// BatchFinisher runs inside the batch transaction after all records of
// a batch have been applied and before the ledger advances. consumed is
// the file size covered by the records actually consumed.
type BatchFinisher func(ctx context.Context, tx *store.Tx, consumed int64) error

// Result summarizes one incremental apply.
type Result struct {
	// Applied is the number of records applied to the store.
	Applied int
	// Skipped is the number of malformed records dropped.
	Skipped int
	// Consumed is the ledger position after the batch.
	Consumed int64
}

// ApplyNewRecords reads the unprocessed byte suffix of path, splits it
// into newline-terminated records, applies each in order, and advances
// the ledger atomically with the application.
//
// A missing file is a no-op, not an error: files may be transiently
// absent during rotation. A file whose ledger is already at or past its
// current size is a no-op; this guards against duplicate watcher
// events. A trailing partial line (file read mid-write) is left for the
// next invocation. Any read error aborts this invocation only and
// leaves the ledger unchanged, so the next trigger retries the same
// range.
func ApplyNewRecords(ctx context.Context, st *store.Store, path string, apply RecordApplier, finish BatchFinisher, logger *log.Logger) (Result, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	offset, err := st.Offset(ctx, path)
	if err != nil {
		return Result{}, err
	}

	size := info.Size()
	if offset >= size {
		return Result{Consumed: offset}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, size-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Only complete, newline-terminated records are eligible; a record
	// must not straddle two invocations.
	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return Result{Consumed: offset}, nil
	}
	buf = buf[:end+1]
	consumed := offset + int64(end) + 1

	res := Result{Consumed: consumed}
	mtimeNs := info.ModTime().UnixNano()

	err = st.WithTx(ctx, func(tx *store.Tx) error {
		lineStart := int64(0)
		for len(buf) > 0 {
			nl := bytes.IndexByte(buf, '\n')
			line := buf[:nl]
			buf = buf[nl+1:]
			recordOffset := offset + lineStart
			lineStart += int64(nl) + 1

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			if err := apply(ctx, tx, line, recordOffset); err != nil {
				res.Skipped++
				continue
			}
			res.Applied++
		}

		if finish != nil {
			if err := finish(ctx, tx, consumed); err != nil {
				return err
			}
		}

		return tx.SetOffset(ctx, path, consumed, mtimeNs)
	})
	if err != nil {
		return Result{}, err
	}

	if res.Skipped > 0 && logger != nil {
		logger.Printf("Skipped %d malformed record(s) in %s", res.Skipped, path)
	}
	return res, nil
}
