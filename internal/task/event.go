package task

import (
	"fmt"
	"time"
)

// EventType names the kinds of events the Controller emits.
type EventType string

const (
	EventStatusChanged EventType = "task.status_changed"
	EventNotification  EventType = "notification"
)

// Event is emitted by the Controller after a persisted transition.
type Event struct {
	Type         EventType
	TaskID       string
	From         Status
	To           Status
	At           time.Time
	Notification *Notification // set only for EventNotification
}

// Notification is a user-facing alert tied to one transition.
type Notification struct {
	ID     string `json:"notification_id"`
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// NotificationID derives the id client contexts deduplicate on.
func NotificationID(taskID string, to Status, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", taskID, to, at.UnixMilli())
}

// NotifyFunc receives controller events. It runs while the task's transition
// lock is held and must not block.
type NotifyFunc func(Event)

// PolicyFunc decides whether a transition deserves a notification and, if so,
// its title and body.
type PolicyFunc func(t Task, from, to Status) (title, body string, ok bool)

// DefaultPolicy notifies when a task becomes ready for review or is done.
func DefaultPolicy(t Task, _, to Status) (string, string, bool) {
	name := t.Title
	if name == "" {
		name = t.ID
	}
	switch to {
	case StatusInReview:
		return "Ready for review", fmt.Sprintf("%s is waiting for your review", name), true
	case StatusDone:
		return "Task done", fmt.Sprintf("%s was merged", name), true
	default:
		return "", "", false
	}
}
