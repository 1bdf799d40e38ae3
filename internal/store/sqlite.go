package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed-width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
// The special path ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := prepareFile(path); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func prepareFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
		return nil
	}

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("restricting database permissions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Tasks ---

const taskColumns = "id, title, status, status_updated_at, review_ref, created_at"

func (s *SQLiteStore) CreateTask(t *TaskRecord) error {
	_, err := s.db.Exec(`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Status, formatTime(t.StatusUpdatedAt), t.ReviewRef, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(id string) (*TaskRecord, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return t, err
}

// UpdateTaskStatus persists a new status. Returns ErrNotFound when the task
// was deleted in the meantime.
func (s *SQLiteStore) UpdateTaskStatus(id, status string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE tasks SET status = ?, status_updated_at = ? WHERE id = ?`,
		status, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating task status: %w", err)
	}
	return requireAffected(res, id)
}

func (s *SQLiteStore) SetReviewRef(id, ref string) error {
	res, err := s.db.Exec(`UPDATE tasks SET review_ref = ? WHERE id = ?`, ref, id)
	if err != nil {
		return fmt.Errorf("updating review ref: %w", err)
	}
	return requireAffected(res, id)
}

func (s *SQLiteStore) DeleteTask(id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	return requireAffected(res, id)
}

func (s *SQLiteStore) ListTasks(f TaskFilter) ([]TaskRecord, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1=1"
	var args []any

	if f.Status != "" && f.Status != "all" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if len(f.ExcludeStatus) > 0 {
		query += " AND status NOT IN (?" + strings.Repeat(", ?", len(f.ExcludeStatus)-1) + ")"
		for _, st := range f.ExcludeStatus {
			args = append(args, st)
		}
	}
	if f.WithReviewRef {
		query += " AND review_ref != ''"
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// --- Task Events ---

func (s *SQLiteStore) AddEvent(e *TaskEvent) error {
	_, err := s.db.Exec(`INSERT INTO task_events (task_id, event_type, from_status, to_status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.TaskID, e.EventType, e.FromStatus, e.ToStatus, e.Message, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("adding event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetEvents(taskID string, limit int) ([]TaskEvent, error) {
	query := `SELECT id, task_id, event_type, from_status, to_status, message, created_at
		FROM task_events WHERE task_id = ? ORDER BY id DESC`
	args := []any{taskID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []TaskEvent
	for rows.Next() {
		var e TaskEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.EventType, &e.FromStatus, &e.ToStatus, &e.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Maintenance ---

// Cleanup removes audit events older than retention. A non-positive retention keeps everything.
func (s *SQLiteStore) Cleanup(retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	cutoff := formatTime(time.Now().Add(-retention))
	if _, err := s.db.Exec("DELETE FROM task_events WHERE created_at < ?", cutoff); err != nil {
		return fmt.Errorf("cleaning events: %w", err)
	}
	return nil
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*TaskRecord, error) {
	var t TaskRecord
	var statusUpdatedAt, createdAt string

	err := row.Scan(&t.ID, &t.Title, &t.Status, &statusUpdatedAt, &t.ReviewRef, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	t.StatusUpdatedAt = parseTime(statusUpdatedAt)
	t.CreatedAt = parseTime(createdAt)

	return &t, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("task %q: %w", id, ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
