package store

import "time"

// Project is a working directory that owns sessions and commits.
// Identity is the filesystem path; counts are maintained by ingestion.
type Project struct {
	ID                int64
	Path              string
	DisplayName       string
	SessionCount      int
	MessageCount      int
	LastIndexedCommit string
	RemoteURL         string
	LogoPath          string
}

// Session is one agent conversation, backed by a transcript file.
// The session id is externally assigned and stable. A session may be
// observed (via its transcript) before its owning project is known.
type Session struct {
	ID                  string
	ProjectID           int64 // 0 when not yet associated
	JSONLPath           string
	Summary             string
	FirstPrompt         string
	MessageCount        int
	CreatedAt           time.Time
	ModifiedAt          time.Time
	GitBranch           string
	IsSidechain         bool
	Slug                string
	IndexedBytes        int64
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
}

// Message is one conversational turn from a transcript. Append-only.
// ByteOffset records provenance; dedup comes from (session_id, uuid).
type Message struct {
	ID                  int64
	SessionID           string
	UUID                string
	ParentUUID          string
	Type                string
	Role                string
	Model               string
	ContentText         string
	ContentJSON         string
	InputTokens         int64
	OutputTokens        int64
	CacheReadTokens     int64
	CacheCreationTokens int64
	Timestamp           time.Time
	ByteOffset          int64
}

// ToolUse is one structured tool invocation found inside an assistant
// message. The input payload is kept verbatim as an opaque blob.
type ToolUse struct {
	ID        int64
	MessageID int64
	SessionID string
	ToolName  string
	ToolUseID string
	InputJSON string
	Timestamp time.Time
}

// Commit is one version-control commit imported for a project.
type Commit struct {
	ID            int64
	ProjectID     int64
	Hash          string
	ShortHash     string
	Subject       string
	Body          string
	Author        string
	AuthorEmail   string
	Timestamp     time.Time
	FilesChanged  int
	Insertions    int
	Deletions     int
	AgentAuthored bool
}

// Match types for session-commit links.
const (
	MatchDirect   = "direct"
	MatchInferred = "inferred"
)

// SessionCommitLink attributes a commit to a session whose active
// time window contains the commit timestamp.
type SessionCommitLink struct {
	ID        int64
	SessionID string
	CommitID  int64
	MatchType string
}

// HistoryEntry is one line of the append-only prompt history log.
type HistoryEntry struct {
	ID          int64
	Display     string
	ProjectPath string
	Timestamp   time.Time
	ByteOffset  int64
}

// Plan is a markdown plan document, replaced wholesale per filename.
type Plan struct {
	Filename  string
	Title     string
	Content   string
	UpdatedAt time.Time
}

// Todo is one entry of a todo snapshot file. The whole set for a
// source file is replaced on every observed change.
type Todo struct {
	ID         int64
	SourceFile string
	Content    string
	Status     string
	ActiveForm string
	Position   int
}

// FileHistoryEntry records one versioned file backup for a session.
type FileHistoryEntry struct {
	ID             int64
	SessionID      string
	BackupFilename string
	SizeBytes      int64
	ModifiedAt     time.Time
}

// SessionWindow is the [CreatedAt, ModifiedAt] interval used to
// attribute commits to a session.
type SessionWindow struct {
	SessionID  string
	CreatedAt  time.Time
	ModifiedAt time.Time
}
