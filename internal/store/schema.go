package store

// bootstrapDDL creates every table the oracle needs. All statements are
// IF NOT EXISTS so startup is idempotent; log tables are also created lazily
// by the HTTP server for databases that predate them.
const bootstrapDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS oracle_documents (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	source_file       TEXT NOT NULL DEFAULT '',
	concepts          TEXT NOT NULL DEFAULT '[]',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	indexed_at        TEXT NOT NULL,
	superseded_by     TEXT,
	superseded_at     TEXT,
	superseded_reason TEXT,
	origin            TEXT,
	project           TEXT,
	created_by        TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS oracle_fts USING fts5(
	id, type, title, content, concepts,
	tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	color       TEXT NOT NULL DEFAULT '#888888',
	description TEXT,
	path        TEXT
);

CREATE TABLE IF NOT EXISTS indexing_status (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	is_indexing      INTEGER NOT NULL DEFAULT 0,
	progress_current INTEGER NOT NULL DEFAULT 0,
	progress_total   INTEGER NOT NULL DEFAULT 0,
	started_at       TEXT,
	completed_at     TEXT,
	error            TEXT
);

CREATE TABLE IF NOT EXISTS search_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	query          TEXT NOT NULL,
	type           TEXT,
	mode           TEXT,
	results_count  INTEGER NOT NULL DEFAULT 0,
	search_time_ms INTEGER NOT NULL DEFAULT 0,
	project        TEXT,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS consult_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	decision         TEXT NOT NULL,
	context          TEXT,
	principles_found INTEGER NOT NULL DEFAULT 0,
	patterns_found   INTEGER NOT NULL DEFAULT 0,
	guidance         TEXT,
	project          TEXT,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS learn_log (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id     TEXT NOT NULL,
	pattern_preview TEXT,
	source          TEXT,
	concepts        TEXT,
	project         TEXT,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS document_access (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL,
	access_type TEXT NOT NULL,
	project     TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trace_log (
	trace_id        TEXT PRIMARY KEY,
	query           TEXT NOT NULL,
	query_type      TEXT,
	files           TEXT NOT NULL DEFAULT '[]',
	commits         TEXT NOT NULL DEFAULT '[]',
	issues          TEXT NOT NULL DEFAULT '[]',
	retros          TEXT NOT NULL DEFAULT '[]',
	learnings       TEXT NOT NULL DEFAULT '[]',
	resonance       TEXT NOT NULL DEFAULT '[]',
	file_count      INTEGER NOT NULL DEFAULT 0,
	commit_count    INTEGER NOT NULL DEFAULT 0,
	issue_count     INTEGER NOT NULL DEFAULT 0,
	depth           INTEGER NOT NULL DEFAULT 0,
	parent_trace_id TEXT,
	child_trace_ids TEXT NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL DEFAULT 'raw',
	awakening       TEXT,
	distilled_to_id TEXT,
	project         TEXT,
	created_at      TEXT NOT NULL,
	distilled_at    TEXT
);

CREATE TABLE IF NOT EXISTS decisions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	context    TEXT,
	options    TEXT NOT NULL DEFAULT '[]',
	decision   TEXT,
	rationale  TEXT,
	project    TEXT,
	tags       TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	decided_at TEXT,
	decided_by TEXT
);

CREATE TABLE IF NOT EXISTS forum_threads (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	title                 TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'active',
	project               TEXT,
	created_by            TEXT,
	external_issue_url    TEXT,
	external_issue_number INTEGER,
	synced_at             TEXT,
	created_at            TEXT NOT NULL,
	updated_at            TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS forum_messages (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id        INTEGER NOT NULL,
	role             TEXT NOT NULL,
	content          TEXT NOT NULL,
	author           TEXT,
	principles_found INTEGER,
	patterns_found   INTEGER,
	search_query     TEXT,
	comment_id       TEXT,
	created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_type ON oracle_documents(type);
CREATE INDEX IF NOT EXISTS idx_documents_source ON oracle_documents(source_file);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON forum_messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_traces_parent ON trace_log(parent_trace_id);
`

// migrations are applied after bootstrap on every startup. Databases created
// before the project partition existed gain the column here; the duplicate
// column error on later startups is swallowed by migrate.
var migrations = []string{
	`ALTER TABLE oracle_documents ADD COLUMN project TEXT`,
	`ALTER TABLE search_log ADD COLUMN project TEXT`,
	`ALTER TABLE consult_log ADD COLUMN project TEXT`,
	`ALTER TABLE learn_log ADD COLUMN project TEXT`,
	`ALTER TABLE document_access ADD COLUMN project TEXT`,
	`INSERT OR IGNORE INTO indexing_status (id, is_indexing) VALUES (1, 0)`,
}
