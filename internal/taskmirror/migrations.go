package taskmirror

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	comment_id  TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	author_id   TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'open',
	due_date    DATETIME NOT NULL,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS calendar_entries (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	starts_at   DATETIME NOT NULL,
	all_day     INTEGER NOT NULL DEFAULT 1,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calendar_entries_task ON calendar_entries(task_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
