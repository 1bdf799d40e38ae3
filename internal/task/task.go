package task

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/btouchard/beacon/internal/store"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusInReview   Status = "IN_REVIEW"
	StatusDone       Status = "DONE"
	StatusCanceled   Status = "CANCELED"
)

// IsTerminal reports whether no automatic transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCanceled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInProgress, StatusInReview, StatusDone, StatusCanceled:
		return true
	default:
		return false
	}
}

// TerminalStatuses lists the statuses with no outgoing automatic transitions.
func TerminalStatuses() []string {
	return []string{string(StatusDone), string(StatusCanceled)}
}

// ParseStatus validates a status string coming from outside the process.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Task is a read-only view of a persisted task.
type Task struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Status          Status    `json:"status"`
	StatusUpdatedAt time.Time `json:"status_updated_at"`
	ReviewRef       string    `json:"review_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// FromRecord converts a store record into a Task.
func FromRecord(r *store.TaskRecord) Task {
	return Task{
		ID:              r.ID,
		Title:           r.Title,
		Status:          Status(r.Status),
		StatusUpdatedAt: r.StatusUpdatedAt,
		ReviewRef:       r.ReviewRef,
		CreatedAt:       r.CreatedAt,
	}
}

// GenerateID creates a new task ID in the format task-{8 hex chars}.
func GenerateID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("task-%x", b)
}

// New builds a record for a freshly started task. Tasks begin IN_PROGRESS.
func New(title, reviewRef string) *store.TaskRecord {
	now := time.Now().UTC()
	return &store.TaskRecord{
		ID:              GenerateID(),
		Title:           title,
		Status:          string(StatusInProgress),
		StatusUpdatedAt: now,
		ReviewRef:       reviewRef,
		CreatedAt:       now,
	}
}
