package store

// schemaSQL is the complete database schema. Every statement is
// idempotent so opening an existing database is safe.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	path                TEXT NOT NULL UNIQUE,
	display_name        TEXT NOT NULL DEFAULT '',
	session_count       INTEGER NOT NULL DEFAULT 0,
	message_count       INTEGER NOT NULL DEFAULT 0,
	last_indexed_commit TEXT NOT NULL DEFAULT '',
	remote_url          TEXT NOT NULL DEFAULT '',
	logo_path           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sessions (
	id                    TEXT PRIMARY KEY,
	project_id            INTEGER REFERENCES projects(id),
	jsonl_path            TEXT NOT NULL DEFAULT '',
	summary               TEXT NOT NULL DEFAULT '',
	first_prompt          TEXT NOT NULL DEFAULT '',
	message_count         INTEGER NOT NULL DEFAULT 0,
	created_at            TEXT,
	modified_at           TEXT,
	git_branch            TEXT NOT NULL DEFAULT '',
	is_sidechain          INTEGER NOT NULL DEFAULT 0,
	slug                  TEXT NOT NULL DEFAULT '',
	indexed_bytes         INTEGER NOT NULL DEFAULT 0,
	input_tokens          INTEGER NOT NULL DEFAULT 0,
	output_tokens         INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens     INTEGER NOT NULL DEFAULT 0,
	cache_creation_tokens INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id            TEXT NOT NULL,
	uuid                  TEXT,
	parent_uuid           TEXT NOT NULL DEFAULT '',
	type                  TEXT NOT NULL,
	role                  TEXT NOT NULL DEFAULT '',
	model                 TEXT NOT NULL DEFAULT '',
	content_text          TEXT NOT NULL DEFAULT '',
	content_json          TEXT NOT NULL DEFAULT '',
	input_tokens          INTEGER NOT NULL DEFAULT 0,
	output_tokens         INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens     INTEGER NOT NULL DEFAULT 0,
	cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
	timestamp             TEXT,
	byte_offset           INTEGER NOT NULL DEFAULT 0,
	UNIQUE(session_id, uuid)
);

CREATE TABLE IF NOT EXISTS tool_uses (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id  INTEGER NOT NULL,
	session_id  TEXT NOT NULL,
	tool_name   TEXT NOT NULL,
	tool_use_id TEXT,
	input_json  TEXT NOT NULL DEFAULT '',
	timestamp   TEXT,
	UNIQUE(session_id, tool_use_id)
);

CREATE TABLE IF NOT EXISTS commits (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id           INTEGER NOT NULL REFERENCES projects(id),
	hash                 TEXT NOT NULL,
	short_hash           TEXT NOT NULL DEFAULT '',
	subject              TEXT NOT NULL DEFAULT '',
	body                 TEXT NOT NULL DEFAULT '',
	author               TEXT NOT NULL DEFAULT '',
	author_email         TEXT NOT NULL DEFAULT '',
	timestamp            TEXT,
	files_changed        INTEGER NOT NULL DEFAULT 0,
	insertions           INTEGER NOT NULL DEFAULT 0,
	deletions            INTEGER NOT NULL DEFAULT 0,
	is_authored_by_agent INTEGER NOT NULL DEFAULT 0,
	UNIQUE(project_id, hash)
);

CREATE TABLE IF NOT EXISTS session_commits (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	commit_id  INTEGER NOT NULL REFERENCES commits(id),
	match_type TEXT NOT NULL CHECK (match_type IN ('direct', 'inferred')),
	UNIQUE(session_id, commit_id)
);

CREATE TABLE IF NOT EXISTS history (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	display      TEXT NOT NULL DEFAULT '',
	project_path TEXT NOT NULL DEFAULT '',
	timestamp    TEXT,
	byte_offset  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS plans (
	filename   TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL DEFAULT '',
	updated_at TEXT
);

CREATE TABLE IF NOT EXISTS todos (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_file TEXT NOT NULL,
	content     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	active_form TEXT NOT NULL DEFAULT '',
	position    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS file_history (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL,
	backup_filename TEXT NOT NULL,
	size_bytes      INTEGER NOT NULL DEFAULT 0,
	modified_at     TEXT,
	UNIQUE(session_id, backup_filename)
);

CREATE TABLE IF NOT EXISTS file_offsets (
	file_path     TEXT PRIMARY KEY,
	indexed_bytes INTEGER NOT NULL DEFAULT 0,
	mtime_ns      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stats_snapshot (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	payload     TEXT NOT NULL DEFAULT '',
	captured_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_uses_session ON tool_uses(session_id);
CREATE INDEX IF NOT EXISTS idx_tool_uses_message ON tool_uses(message_id);
CREATE INDEX IF NOT EXISTS idx_commits_project ON commits(project_id);
CREATE INDEX IF NOT EXISTS idx_commits_timestamp ON commits(timestamp);
CREATE INDEX IF NOT EXISTS idx_session_commits_session ON session_commits(session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_todos_source ON todos(source_file);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp);
`
