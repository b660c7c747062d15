package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS folder_snapshots (
	key      TEXT PRIMARY KEY,
	user_id  TEXT NOT NULL,
	data     TEXT NOT NULL DEFAULT '[]',
	saved_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pending_actions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	position   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_user ON folder_snapshots(user_id);
CREATE INDEX IF NOT EXISTS idx_actions_user_position
	ON pending_actions(user_id, position);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
