package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a task does not exist (never created or deleted).
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for Beacon.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Tasks
	CreateTask(t *TaskRecord) error
	GetTask(id string) (*TaskRecord, error)
	UpdateTaskStatus(id, status string, at time.Time) error
	SetReviewRef(id, ref string) error
	ListTasks(f TaskFilter) ([]TaskRecord, error)
	DeleteTask(id string) error

	// Task events
	AddEvent(e *TaskEvent) error
	GetEvents(taskID string, limit int) ([]TaskEvent, error)

	// Maintenance
	Cleanup(retention time.Duration) error
	Close() error
}

// TaskRecord represents a persisted task.
type TaskRecord struct {
	ID              string
	Title           string
	Status          string
	StatusUpdatedAt time.Time
	ReviewRef       string // external review reference, e.g. "owner/repo#42"
	CreatedAt       time.Time
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	Status        string
	ExcludeStatus []string
	WithReviewRef bool // only tasks that carry an external review reference
	Limit         int
	Since         time.Time
}

// TaskEvent is an audit trail entry for an applied status transition.
type TaskEvent struct {
	ID         int64
	TaskID     string
	EventType  string
	FromStatus string
	ToStatus   string
	Message    string
	CreatedAt  time.Time
}
