package store

// migrations are applied in order; index i holds schema version i+1.
var migrations = []string{
	`CREATE TABLE tasks (
		id                TEXT PRIMARY KEY,
		title             TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL,
		status_updated_at TEXT NOT NULL DEFAULT '',
		review_ref        TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL
	);
	CREATE INDEX idx_tasks_status ON tasks(status);

	CREATE TABLE task_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id     TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		from_status TEXT NOT NULL DEFAULT '',
		to_status   TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);
	CREATE INDEX idx_task_events_task ON task_events(task_id, created_at);`,
}
